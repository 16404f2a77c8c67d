package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"contenthub/backend/internal/kb"
	"contenthub/backend/internal/llm"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/prompts"
	"contenthub/backend/internal/repository"
	"contenthub/backend/pkg/models"
)

const instrumentationName = "contenthub/backend/internal/services"

// Image sources for generated drafts.
const (
	ImageSourceGenerate = "generate"
	ImageSourceOriginal = "original"
)

const (
	recentSourceLimit   = 5
	maxRecordedSources  = 3
	syntheticTitleRunes = 100
)

// ImageOptions controls what happens to a draft's images after it is saved.
type ImageOptions struct {
	GenerateImages  bool
	ImageSource     string
	Styles          []models.ImageStyle
	AspectRatio     models.AspectRatio
	SourceImageURLs []string
}

// DefaultImageOptions renders the default styles at 1:1.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		GenerateImages: true,
		ImageSource:    ImageSourceGenerate,
		AspectRatio:    models.DefaultAspectRatio,
	}
}

func (o ImageOptions) validate() error {
	switch o.ImageSource {
	case "", ImageSourceGenerate, ImageSourceOriginal:
	default:
		return invalidf("unknown image source %q", o.ImageSource)
	}
	if len(o.Styles) > maxBatchImages {
		return invalidf("at most %d image styles", maxBatchImages)
	}
	for _, s := range o.Styles {
		if !s.Synthesized() {
			return invalidf("unknown image style %q", s)
		}
	}
	return nil
}

// GenerateRequest asks for one draft on one platform.
type GenerateRequest struct {
	WorkspaceID string
	Platform    models.Platform
	SourceIDs   []string
	CustomText  string
	Angle       string
	FunnelStage models.FunnelStage
	RunID       string
	Images      ImageOptions
}

// GenerateMultiRequest asks for one draft per platform sharing a single image set.
type GenerateMultiRequest struct {
	WorkspaceID string
	Platforms   []models.Platform
	SourceIDs   []string
	CustomText  string
	Angle       string
	RunID       string
	Images      ImageOptions
}

// RegenerateRequest rewrites a draft with one of the regeneration actions.
type RegenerateRequest struct {
	DraftID  string
	Action   string
	Feedback string
}

// regenerateActions maps each action to the reply key holding its result.
var regenerateActions = map[string]string{
	"hook":         "recommended_full_post",
	"shorten":      "shortened",
	"direct":       "direct_version",
	"storytelling": "story_version",
	"cta":          "ctas",
	"thread":       "thread",
	"rewrite":      "rewritten",
}

// RegenerateActions lists the supported regeneration actions.
func RegenerateActions() []string {
	return []string{"hook", "shorten", "direct", "storytelling", "cta", "thread", "rewrite"}
}

// GenerationService runs the plan, write, quality, persist and image pipeline.
type GenerationService struct {
	store   GenerationStore
	kb      *kb.Loader
	stages  *stages
	images  ImageProducer
	logger  *logging.Logger
	tracer  trace.Tracer
	drafts  metric.Int64Counter
	now     func() time.Time
	newID   func() string
	enabled bool
}

// NewGenerationService creates a GenerationService. gen may be nil when no model is
// configured, in which case every call fails with ErrServiceNotConfigured. images may
// be nil to disable image generation.
func NewGenerationService(store GenerationStore, loader *kb.Loader, gen llm.TextGenerator, tmpl *prompts.Set, images ImageProducer, logger *logging.Logger) *GenerationService {
	if logger == nil {
		logger = logging.NewNop()
	}
	tracer := otel.Tracer(instrumentationName)
	drafts, err := otel.Meter(instrumentationName).Int64Counter("contenthub.drafts.created",
		metric.WithDescription("Drafts persisted by the generation pipeline"))
	if err != nil {
		logger.Warn("draft counter unavailable", "error", err)
	}
	return &GenerationService{
		store:   store,
		kb:      loader,
		stages:  &stages{llm: gen, prompts: tmpl, logger: logger, tracer: tracer},
		images:  images,
		logger:  logger,
		tracer:  tracer,
		drafts:  drafts,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
		enabled: gen != nil && tmpl != nil,
	}
}

// Generate produces, persists and illustrates one draft.
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationResult, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	if !req.Platform.Valid() {
		return nil, invalidf("unsupported platform %q", req.Platform)
	}
	if req.FunnelStage != "" && !req.FunnelStage.Valid() {
		return nil, invalidf("unknown funnel stage %q", req.FunnelStage)
	}
	if err := req.Images.validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "generation.generate", trace.WithAttributes(
		attribute.String("workspace_id", req.WorkspaceID),
		attribute.String("platform", string(req.Platform)),
	))
	defer span.End()

	sources, err := s.selectSources(ctx, req.WorkspaceID, req.SourceIDs, req.CustomText)
	if err != nil {
		return nil, err
	}

	result, err := s.draft(ctx, req.WorkspaceID, req.Platform, sources, req.Angle, req.FunnelStage, req.RunID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Images = s.bestEffortImages(ctx, req.WorkspaceID, result.DraftID, req.Images)
	return result, nil
}

// GenerateMulti writes one draft per platform in order, renders images once for the first
// draft and links them to the others.
func (s *GenerationService) GenerateMulti(ctx context.Context, req GenerateMultiRequest) (*models.MultiGenerationResult, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	if len(req.Platforms) == 0 {
		return nil, invalidf("at least one platform is required")
	}
	for _, p := range req.Platforms {
		if !p.Valid() {
			return nil, invalidf("unsupported platform %q", p)
		}
	}
	if err := req.Images.validate(); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = s.newID()
	}
	ctx, span := s.tracer.Start(ctx, "generation.generate_multi", trace.WithAttributes(
		attribute.String("workspace_id", req.WorkspaceID),
		attribute.String("run_id", runID),
		attribute.Int("platforms", len(req.Platforms)),
	))
	defer span.End()

	sources, err := s.selectSources(ctx, req.WorkspaceID, req.SourceIDs, req.CustomText)
	if err != nil {
		return nil, err
	}

	out := &models.MultiGenerationResult{RunID: runID, ImageIDs: []string{}}
	for _, platform := range req.Platforms {
		result, err := s.draft(ctx, req.WorkspaceID, platform, sources, req.Angle, "", runID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s draft: %w", platform, err)
		}
		result.Images = []models.ImageResult{}
		out.Drafts = append(out.Drafts, *result)
		s.logger.Info("generated draft", "workspace_id", req.WorkspaceID, "platform", platform, "draft_id", result.DraftID, "run_id", runID)
	}

	first := &out.Drafts[0]
	first.Images = s.bestEffortImages(ctx, req.WorkspaceID, first.DraftID, req.Images)
	for _, img := range first.Images {
		out.ImageIDs = append(out.ImageIDs, img.ImageID)
	}
	s.linkSharedImages(ctx, req.WorkspaceID, first.Images, out.Drafts[1:])
	return out, nil
}

// Regenerate applies a regeneration action to a stored draft. Every action except cta
// replaces the draft content when the model returns a result.
func (s *GenerationService) Regenerate(ctx context.Context, req RegenerateRequest) (*models.RegenerateResult, error) {
	if !s.enabled {
		return nil, ErrServiceNotConfigured
	}
	key, ok := regenerateActions[req.Action]
	if !ok {
		return nil, invalidf("unknown action %q", req.Action)
	}
	if req.Action == "rewrite" && strings.TrimSpace(req.Feedback) == "" {
		return nil, invalidf("rewrite requires feedback")
	}

	ctx, span := s.tracer.Start(ctx, "generation.regenerate", trace.WithAttributes(
		attribute.String("draft_id", req.DraftID),
		attribute.String("action", req.Action),
	))
	defer span.End()

	draft, err := s.store.GetDraft(ctx, req.DraftID)
	if err != nil {
		return nil, notFound("draft", req.DraftID, err)
	}
	kctx := s.kb.Load(ctx, draft.WorkspaceID, draft.Platform)

	f, err := s.stages.ask(ctx, prompts.Regenerate(req.Action), prompts.Vars{
		"content":       draft.ContentText,
		"tone_of_voice": kctx.ToneOfVoice,
		"feedback":      req.Feedback,
	})
	if err != nil {
		return nil, err
	}

	result := &models.RegenerateResult{
		DraftID:    draft.ID,
		Action:     req.Action,
		Content:    draft.ContentText,
		ResultData: f,
	}
	var updated string
	switch req.Action {
	case "cta":
		result.Options = f.Strings(key)
		return result, nil
	case "thread":
		updated = strings.Join(f.Strings(key), threadSeparator)
	default:
		updated = f.String(key)
	}
	if strings.TrimSpace(updated) == "" {
		s.logger.Warn("regeneration returned no content", "draft_id", draft.ID, "action", req.Action)
		return result, nil
	}

	if err := s.store.UpdateDraftContent(ctx, draft.ID, updated, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("draft", draft.ID, err)
		}
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	result.Content = updated
	result.Updated = true
	s.logger.Info("regenerated draft", "draft_id", draft.ID, "action", req.Action)
	return result, nil
}

// selectSources returns a synthetic source for custom text, the requested sources, or the
// most recent enriched ones. It fails with ErrNoSources before anything is written.
func (s *GenerationService) selectSources(ctx context.Context, workspaceID string, ids []string, customText string) ([]models.Source, error) {
	if text := strings.TrimSpace(customText); text != "" {
		s.logger.Info("using custom text input for generation", "workspace_id", workspaceID)
		return []models.Source{{
			ID:          syntheticSource,
			WorkspaceID: workspaceID,
			Type:        models.SourceTypeNote,
			Title:       firstRunes(text, syntheticTitleRunes),
			Summary:     text,
			Status:      models.SourceStatusEnriched,
			Synthetic:   true,
		}}, nil
	}

	sources, err := s.store.ListSources(ctx, repository.SourceQuery{
		WorkspaceID: workspaceID,
		IDs:         ids,
		Status:      models.SourceStatusEnriched,
		Limit:       recentSourceLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

// draft runs plan, write and quality for one platform and persists the result.
func (s *GenerationService) draft(ctx context.Context, workspaceID string, platform models.Platform, sources []models.Source, angle string, stage models.FunnelStage, runID string) (*models.GenerationResult, error) {
	kctx := s.kb.Load(ctx, workspaceID, platform)

	plan, err := s.stages.plan(ctx, sources, kctx, platform, angle, stage)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	variants, hashtags, err := s.stages.write(ctx, plan, kctx, platform)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	if len(variants) == 0 {
		return nil, ErrEmptyGeneration
	}

	quality := s.bestEffortQuality(ctx, variants[0].Content, kctx, platform)
	content := variants[0].Content

	now := s.now()
	d := &models.Draft{
		ID:          s.newID(),
		WorkspaceID: workspaceID,
		Platform:    platform,
		RunID:       runID,
		ContentText: content,
		Variants:    variants,
		Hashtags:    hashtags,
		SourceIDs:   realSourceIDs(sources),
		FunnelStage: resolveFunnelStage(stage, plan.FunnelStage),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	if s.drafts != nil {
		s.drafts.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", string(platform))))
	}
	s.logger.Info("saved draft", "workspace_id", workspaceID, "platform", platform, "draft_id", d.ID, "funnel_stage", d.FunnelStage, "variants", len(variants))

	return &models.GenerationResult{
		DraftID:       d.ID,
		Platform:      platform,
		RunID:         runID,
		Content:       content,
		Variants:      variants,
		Hashtags:      hashtags,
		SourceIDs:     d.SourceIDs,
		FunnelStage:   d.FunnelStage,
		QualityScores: quality,
		Images:        []models.ImageResult{},
	}, nil
}

// bestEffortQuality returns the rubric report or an empty one; it never fails the draft.
func (s *GenerationService) bestEffortQuality(ctx context.Context, content string, kctx kb.Context, platform models.Platform) models.QualityReport {
	report, err := s.stages.qualityCheck(ctx, content, kctx, platform)
	if err != nil {
		s.logger.Warn("quality check failed, continuing without scores", "platform", platform, "error", err)
		return models.QualityReport{}
	}
	return report
}

// bestEffortImages attaches images to a saved draft. Failures are logged and yield an
// empty list; they never fail content generation.
func (s *GenerationService) bestEffortImages(ctx context.Context, workspaceID, draftID string, opts ImageOptions) []models.ImageResult {
	none := []models.ImageResult{}
	if !opts.GenerateImages {
		return none
	}
	if s.images == nil {
		s.logger.Debug("image generation disabled", "draft_id", draftID)
		return none
	}

	switch opts.ImageSource {
	case ImageSourceOriginal:
		if len(opts.SourceImageURLs) == 0 {
			return none
		}
		images := s.images.SaveSourceImages(ctx, workspaceID, draftID, opts.SourceImageURLs)
		s.logger.Info("attached original source images", "draft_id", draftID, "count", len(images))
		return images
	default:
		styles := opts.Styles
		if len(styles) == 0 {
			styles = models.DefaultImageStyles
		}
		batch, err := s.images.GenerateBatch(ctx, BatchRequest{
			DraftID:     draftID,
			Count:       len(styles),
			Styles:      styles,
			AspectRatio: opts.AspectRatio,
			IncludeLogo: true,
		})
		if err != nil {
			s.logger.Error("image generation failed, continuing without images", "draft_id", draftID, "error", err)
			return none
		}
		s.logger.Info("generated images", "draft_id", draftID, "requested", len(styles), "generated", len(batch.Images))
		return batch.Images
	}
}

// linkSharedImages gives every other draft its own rows for the shared images.
// A failure for one draft does not stop the rest.
func (s *GenerationService) linkSharedImages(ctx context.Context, workspaceID string, images []models.ImageResult, drafts []models.GenerationResult) {
	if len(images) == 0 || s.images == nil {
		return
	}
	for i := range drafts {
		linked, err := s.images.LinkImages(ctx, workspaceID, drafts[i].DraftID, images)
		if err != nil {
			s.logger.Error("failed to link shared images", "draft_id", drafts[i].DraftID, "linked", len(linked), "error", err)
		}
		if linked != nil {
			drafts[i].Images = linked
		}
		s.logger.Info("linked shared images", "platform", drafts[i].Platform, "draft_id", drafts[i].DraftID, "count", len(linked))
	}
}

func realSourceIDs(sources []models.Source) []string {
	ids := make([]string, 0, maxRecordedSources)
	for _, src := range sources {
		if src.Synthetic || src.ID == "" {
			continue
		}
		ids = append(ids, src.ID)
		if len(ids) == maxRecordedSources {
			break
		}
	}
	return ids
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

