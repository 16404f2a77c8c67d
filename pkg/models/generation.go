package models

// QualityReport is the advisory rubric score of a draft's primary variant.
// It is empty when the quality stage was skipped or failed.
type QualityReport struct {
	Scores                 map[string]float64 `json:"scores,omitempty"`
	TotalScore             float64            `json:"total_score,omitempty"`
	RiskFlags              []string           `json:"risk_flags,omitempty"`
	ImprovementSuggestions []string           `json:"improvement_suggestions,omitempty"`
}

// ContentPlan is the planner's decision for one post. It is folded into the draft, never stored.
type ContentPlan struct {
	SelectedAngle  string   `json:"selected_angle,omitempty"`
	FunnelStage    string   `json:"funnel_stage,omitempty"`
	MainInsight    string   `json:"main_insight,omitempty"`
	KeyPoints      []string `json:"key_points,omitempty"`
	SuggestedHook  string   `json:"suggested_hook,omitempty"`
	CTADirection   string   `json:"cta_direction,omitempty"`
	SourceIDsToUse []string `json:"source_ids_to_use,omitempty"`
}

// ImageResult is an image record as returned to callers, with its public URL.
type ImageResult struct {
	ImageID     string      `json:"image_id"`
	DraftID     string      `json:"draft_id"`
	Prompt      string      `json:"prompt"`
	Model       string      `json:"model,omitempty"`
	StoragePath string      `json:"storage_path"`
	URL         string      `json:"url"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Style       ImageStyle  `json:"style"`
}

// GenerationResult is the outcome of generating one platform draft.
type GenerationResult struct {
	DraftID       string        `json:"draft_id"`
	Platform      Platform      `json:"platform"`
	RunID         string        `json:"run_id,omitempty"`
	Content       string        `json:"content"`
	Variants      []Variant     `json:"variants"`
	Hashtags      []string      `json:"hashtags"`
	SourceIDs     []string      `json:"source_ids"`
	FunnelStage   FunnelStage   `json:"funnel_stage,omitempty"`
	QualityScores QualityReport `json:"quality_scores"`
	Images        []ImageResult `json:"images"`
}

// MultiGenerationResult groups the drafts of one multi-platform run.
// ImageIDs are the images rendered once for the first draft.
type MultiGenerationResult struct {
	RunID    string             `json:"run_id"`
	Drafts   []GenerationResult `json:"drafts"`
	ImageIDs []string           `json:"image_ids"`
}

// RegenerateResult is the outcome of a draft regeneration action.
// For the cta action Options holds the candidates and Content is unchanged.
type RegenerateResult struct {
	DraftID    string         `json:"draft_id"`
	Action     string         `json:"action"`
	Content    string         `json:"content"`
	Updated    bool           `json:"updated"`
	Options    []string       `json:"options,omitempty"`
	ResultData map[string]any `json:"result_data,omitempty"`
}

// BatchImageResult lists the images that rendered successfully, in submission order.
type BatchImageResult struct {
	DraftID string        `json:"draft_id"`
	Images  []ImageResult `json:"images"`
}
