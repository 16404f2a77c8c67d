package models

// Classification is the funnel stage assigned to one draft.
type Classification struct {
	DraftID     string      `json:"draft_id"`
	FunnelStage FunnelStage `json:"funnel_stage"`
	Confidence  float64     `json:"confidence"`
	Reasoning   string      `json:"reasoning,omitempty"`
}

// BatchClassification is the result of classifying every untagged draft of a workspace.
type BatchClassification struct {
	Classified int              `json:"classified"`
	Results    []Classification `json:"results"`
}

// StageCounts counts posts per funnel stage.
type StageCounts struct {
	TOFU         int `json:"tofu"`
	MOFU         int `json:"mofu"`
	BOFU         int `json:"bofu"`
	Unclassified int `json:"unclassified"`
}

// Classified is the number of posts with a funnel stage.
func (c StageCounts) Classified() int { return c.TOFU + c.MOFU + c.BOFU }

// Add counts one post of the given stage.
func (c *StageCounts) Add(stage FunnelStage) {
	switch stage {
	case FunnelTOFU:
		c.TOFU++
	case FunnelMOFU:
		c.MOFU++
	case FunnelBOFU:
		c.BOFU++
	default:
		c.Unclassified++
	}
}

type PlatformDistribution struct {
	Platform Platform    `json:"platform"`
	Counts   StageCounts `json:"counts"`
}

// FunnelDistribution is the funnel breakdown of a workspace over a time period.
type FunnelDistribution struct {
	Total      StageCounts            `json:"total"`
	ByPlatform []PlatformDistribution `json:"by_platform"`
	TimePeriod string                 `json:"time_period"`
}

type StrategyAnalysis struct {
	TOFUPercentage float64 `json:"tofu_percentage"`
	MOFUPercentage float64 `json:"mofu_percentage"`
	BOFUPercentage float64 `json:"bofu_percentage"`
	BalanceScore   int     `json:"balance_score"`
	Summary        string  `json:"summary"`
}

type StrategyGap struct {
	Stage       FunnelStage `json:"stage"`
	Severity    string      `json:"severity"`
	Description string      `json:"description"`
}

type ContentRecommendation struct {
	Stage       FunnelStage `json:"stage"`
	ContentType string      `json:"content_type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Platform    string      `json:"platform"`
}

type PostIdea struct {
	Stage    FunnelStage `json:"stage"`
	Platform string      `json:"platform"`
	Angle    string      `json:"angle"`
	Hook     string      `json:"hook"`
	Outline  string      `json:"outline"`
}

// StrategyRecommendation is the model's reading of a funnel distribution.
type StrategyRecommendation struct {
	Analysis        StrategyAnalysis        `json:"analysis"`
	Gaps            []StrategyGap           `json:"gaps"`
	Recommendations []ContentRecommendation `json:"recommendations"`
	PostIdeas       []PostIdea              `json:"post_ideas"`
	Distribution    FunnelDistribution      `json:"distribution"`
}
