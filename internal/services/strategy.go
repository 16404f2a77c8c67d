package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"contenthub/backend/internal/kb"
	"contenthub/backend/internal/llm"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/prompts"
	"contenthub/backend/internal/repository"
	"contenthub/backend/pkg/models"
)

const (
	classifyContentBudget = 2000
	batchContentBudget    = 500
	unclassifiedLimit     = 50
	singleClassifyLimit   = 5
	defaultConfidence     = 0.5
	defaultBalanceScore   = 5

	PeriodAll     = "all"
	DefaultPeriod = "30d"
)

var periodDays = map[string]int{"7d": 7, "30d": 30, "90d": 90}

// StrategyService classifies drafts into funnel stages and recommends a content mix.
type StrategyService struct {
	drafts  repository.DraftStore
	kb      *kb.Loader
	stages  *stages
	logger  *logging.Logger
	now     func() time.Time
	enabled bool
}

// NewStrategyService creates a StrategyService. Without a text generator only
// Distribution works; the model backed calls fail with ErrServiceNotConfigured.
func NewStrategyService(drafts repository.DraftStore, loader *kb.Loader, gen llm.TextGenerator, tmpl *prompts.Set, logger *logging.Logger) *StrategyService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StrategyService{
		drafts:  drafts,
		kb:      loader,
		stages:  &stages{llm: gen, prompts: tmpl, logger: logger, tracer: otel.Tracer(instrumentationName)},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		enabled: gen != nil && tmpl != nil,
	}
}

// ClassifyPost classifies one draft and stores its funnel stage.
func (s *StrategyService) ClassifyPost(ctx context.Context, draftID string) (*models.Classification, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	draft, err := s.drafts.GetDraft(ctx, draftID)
	if err != nil {
		return nil, notFound("draft", draftID, err)
	}

	f, err := s.stages.ask(ctx, prompts.ClassifyPost, prompts.Vars{
		"platform": string(draft.Platform),
		"content":  models.TruncateText(draft.ContentText, classifyContentBudget),
	})
	if err != nil {
		return nil, err
	}

	stage := stageOrTOFU(f.String("funnel_stage"))
	if err := s.drafts.UpdateDraftFunnelStage(ctx, draft.ID, stage); err != nil {
		return nil, fmt.Errorf("failed to save funnel stage: %w", err)
	}
	s.logger.Info("classified draft", "draft_id", draft.ID, "funnel_stage", stage)
	return &models.Classification{
		DraftID:     draft.ID,
		FunnelStage: stage,
		Confidence:  f.Float("confidence", defaultConfidence),
		Reasoning:   f.String("reasoning"),
	}, nil
}

// ClassifyBatch classifies the newest untagged drafts of a workspace. Small sets are
// classified one at a time; larger ones share a single prompt.
func (s *StrategyService) ClassifyBatch(ctx context.Context, workspaceID string) (*models.BatchClassification, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	drafts, err := s.drafts.ListUnclassifiedDrafts(ctx, workspaceID, unclassifiedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	results := make([]models.Classification, 0, len(drafts))
	if len(drafts) <= singleClassifyLimit {
		for _, d := range drafts {
			r, err := s.ClassifyPost(ctx, d.ID)
			if err != nil {
				s.logger.Error("failed to classify draft", "draft_id", d.ID, "error", err)
				continue
			}
			results = append(results, *r)
		}
		return &models.BatchClassification{Classified: len(results), Results: results}, nil
	}

	var posts strings.Builder
	batch := make(map[string]bool, len(drafts))
	for _, d := range drafts {
		batch[d.ID] = true
		fmt.Fprintf(&posts, "\n---\nID: %s\nPlatform: %s\nContent: %s\n", d.ID, d.Platform, models.TruncateText(d.ContentText, batchContentBudget))
	}
	f, err := s.stages.ask(ctx, prompts.ClassifyBatch, prompts.Vars{"posts": posts.String()})
	if err != nil {
		return nil, err
	}

	for _, c := range f.Slice("classifications") {
		id := c.String("id")
		if !batch[id] {
			s.logger.Warn("ignoring classification outside the batch", "draft_id", id)
			continue
		}
		stage := stageOrTOFU(c.String("funnel_stage"))
		if err := s.drafts.UpdateDraftFunnelStage(ctx, id, stage); err != nil {
			s.logger.Error("failed to update draft", "draft_id", id, "error", err)
			continue
		}
		batch[id] = false
		results = append(results, models.Classification{
			DraftID:     id,
			FunnelStage: stage,
			Confidence:  c.Float("confidence", defaultConfidence),
		})
	}
	s.logger.Info("classified drafts", "workspace_id", workspaceID, "candidates", len(drafts), "classified", len(results))
	return &models.BatchClassification{Classified: len(results), Results: results}, nil
}

// Distribution counts drafts and published posts per funnel stage since the start of
// period (7d, 30d, 90d or all). Platforms are listed alphabetically.
func (s *StrategyService) Distribution(ctx context.Context, workspaceID, period string) (*models.FunnelDistribution, error) {
	if period == "" {
		period = PeriodAll
	}
	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}
	entries, err := s.drafts.FunnelEntries(ctx, workspaceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load funnel entries: %w", err)
	}

	dist := &models.FunnelDistribution{TimePeriod: period, ByPlatform: []models.PlatformDistribution{}}
	perPlatform := map[models.Platform]*models.StageCounts{}
	for _, e := range entries {
		dist.Total.Add(e.FunnelStage)
		c, ok := perPlatform[e.Platform]
		if !ok {
			c = &models.StageCounts{}
			perPlatform[e.Platform] = c
		}
		c.Add(e.FunnelStage)
	}
	for p, c := range perPlatform {
		dist.ByPlatform = append(dist.ByPlatform, models.PlatformDistribution{Platform: p, Counts: *c})
	}
	sort.Slice(dist.ByPlatform, func(i, j int) bool {
		return dist.ByPlatform[i].Platform < dist.ByPlatform[j].Platform
	})
	return dist, nil
}

// Recommend asks the model how to rebalance the workspace's funnel. Entries outside
// tofu, mofu and bofu are dropped.
func (s *StrategyService) Recommend(ctx context.Context, workspaceID, period string) (*models.StrategyRecommendation, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	if period == "" {
		period = DefaultPeriod
	}
	dist, err := s.Distribution(ctx, workspaceID, period)
	if err != nil {
		return nil, err
	}

	brand := s.kb.BrandContext(ctx, workspaceID)
	f, err := s.stages.ask(ctx, prompts.Recommend, prompts.Vars{
		"distribution":       describeDistribution(dist.Total),
		"platform_breakdown": describePlatforms(dist.ByPlatform),
		"time_period":        period,
		"tone_of_voice":      orNotSpecified(brand.ToneOfVoice),
		"brand_guidelines":   orNotSpecified(brand.BrandGuidelines),
	})
	if err != nil {
		return nil, err
	}

	a := f.Map("analysis")
	rec := &models.StrategyRecommendation{
		Analysis: models.StrategyAnalysis{
			TOFUPercentage: a.Float("tofu_percentage", 0),
			MOFUPercentage: a.Float("mofu_percentage", 0),
			BOFUPercentage: a.Float("bofu_percentage", 0),
			BalanceScore:   a.Int("balance_score", defaultBalanceScore),
			Summary:        a.String("summary"),
		},
		Gaps:            []models.StrategyGap{},
		Recommendations: []models.ContentRecommendation{},
		PostIdeas:       []models.PostIdea{},
		Distribution:    *dist,
	}
	for _, g := range f.Slice("gaps") {
		stage, ok := validStage(g.String("stage"))
		if !ok {
			continue
		}
		rec.Gaps = append(rec.Gaps, models.StrategyGap{
			Stage:       stage,
			Severity:    severity(g.String("severity")),
			Description: g.String("description"),
		})
	}
	for _, r := range f.Slice("recommendations") {
		stage, ok := validStage(r.String("stage"))
		if !ok {
			continue
		}
		rec.Recommendations = append(rec.Recommendations, models.ContentRecommendation{
			Stage:       stage,
			ContentType: r.String("content_type"),
			Title:       r.String("title"),
			Description: r.String("description"),
			Platform:    r.StringOr("platform", string(models.PlatformLinkedIn)),
		})
	}
	for _, p := range f.Slice("post_ideas") {
		stage, ok := validStage(p.String("stage"))
		if !ok {
			continue
		}
		rec.PostIdeas = append(rec.PostIdeas, models.PostIdea{
			Stage:    stage,
			Platform: p.StringOr("platform", string(models.PlatformLinkedIn)),
			Angle:    p.String("angle"),
			Hook:     p.String("hook"),
			Outline:  p.String("outline"),
		})
	}
	return rec, nil
}

// ValidPeriod reports whether period is one of 7d, 30d, 90d or all.
func ValidPeriod(period string) bool {
	_, ok := periodDays[period]
	return ok || period == PeriodAll
}

func (s *StrategyService) periodStart(period string) (*time.Time, error) {
	if period == PeriodAll {
		return nil, nil
	}
	days, ok := periodDays[period]
	if !ok {
		return nil, invalidf("unknown time period %q", period)
	}
	since := s.now().AddDate(0, 0, -days)
	return &since, nil
}

func describeDistribution(c models.StageCounts) string {
	total := c.Classified()
	if total == 0 {
		return "No classified posts yet. All posts are unclassified."
	}
	pct := func(n int) int { return int(math.Round(float64(n) / float64(total) * 100)) }
	return fmt.Sprintf("Total classified posts: %d\n- TOFU (Awareness): %d (%d%%)\n- MOFU (Consideration): %d (%d%%)\n- BOFU (Conversion): %d (%d%%)\n- Unclassified: %d",
		total, c.TOFU, pct(c.TOFU), c.MOFU, pct(c.MOFU), c.BOFU, pct(c.BOFU), c.Unclassified)
}

func describePlatforms(platforms []models.PlatformDistribution) string {
	if len(platforms) == 0 {
		return "No platform-specific data available."
	}
	var b strings.Builder
	for _, p := range platforms {
		fmt.Fprintf(&b, "\n%s: TOFU=%d, MOFU=%d, BOFU=%d (total=%d)",
			strings.ToUpper(string(p.Platform)), p.Counts.TOFU, p.Counts.MOFU, p.Counts.BOFU, p.Counts.Classified())
	}
	return b.String()
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func validStage(s string) (models.FunnelStage, bool) {
	stage := models.FunnelStage(strings.ToLower(strings.TrimSpace(s)))
	return stage, stage.Valid()
}

func stageOrTOFU(s string) models.FunnelStage {
	if stage, ok := validStage(s); ok {
		return stage
	}
	return models.FunnelTOFU
}

func severity(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "low", "medium", "high":
		return s
	}
	return "medium"
}

