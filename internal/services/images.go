package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"contenthub/backend/internal/imagegen"
	"contenthub/backend/internal/kb"
	"contenthub/backend/internal/llm"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/prompts"
	"contenthub/backend/internal/storage"
	"contenthub/backend/pkg/models"
)

// Logo modes.
const (
	LogoReference = "reference"
	LogoComposite = "composite"
)

const (
	maxBatchImages       = 4
	sceneFallbackContent = 300
	defaultBrandLook     = "Clean, professional, modern aesthetic."

	sourceImagePrompt = "Original source image"
	sourceImageModel  = "source"
	sharedImageModel  = "shared"
)

// GenerateImageRequest renders one image for a draft.
type GenerateImageRequest struct {
	DraftID     string
	AspectRatio models.AspectRatio
	Style       models.ImageStyle
	// CustomPrompt is used verbatim instead of a synthesized scene brief.
	CustomPrompt string
	IncludeLogo  bool
}

// BatchRequest renders Count images concurrently, one per style.
type BatchRequest struct {
	DraftID     string
	Count       int
	Styles      []models.ImageStyle
	AspectRatio models.AspectRatio
	IncludeLogo bool
}

// ImageDeps are the collaborators of the image orchestrator. SceneWriter and Brand are optional.
type ImageDeps struct {
	Store       ImageStore
	Knowledge   *kb.Loader
	SceneWriter llm.TextGenerator
	Renderer    imagegen.Renderer
	Objects     storage.ObjectStore
	Brand       *imagegen.BrandMark
	LogoMode    string
	Prompts     *prompts.Set
	Logger      *logging.Logger
	// Timeout bounds synthesis plus upload of a single image. Zero means defaultImageTimeout.
	Timeout time.Duration
}

const defaultImageTimeout = 90 * time.Second

// ImageService turns drafts into images: scene brief, synthesis, brand mark, upload, record.
type ImageService struct {
	store    ImageStore
	kb       *kb.Loader
	scene    llm.TextGenerator
	renderer imagegen.Renderer
	objects  storage.ObjectStore
	brand    *imagegen.BrandMark
	logoMode string
	timeout  time.Duration
	prompts  *prompts.Set
	logger   *logging.Logger
	tracer   trace.Tracer
	renders  metric.Int64Counter
	now      func() time.Time
	newID    func() string
}

// NewImageService creates an ImageService.
func NewImageService(d ImageDeps) *ImageService {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	mode := d.LogoMode
	if mode == "" {
		mode = LogoReference
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultImageTimeout
	}
	renders, err := otel.Meter(instrumentationName).Int64Counter("contenthub.images.rendered",
		metric.WithDescription("Images synthesized by the image backend"))
	if err != nil {
		logger.Warn("image counter unavailable", "error", err)
	}
	return &ImageService{
		store:    d.Store,
		kb:       d.Knowledge,
		scene:    d.SceneWriter,
		renderer: d.Renderer,
		objects:  d.Objects,
		brand:    d.Brand,
		logoMode: mode,
		timeout:  timeout,
		prompts:  d.Prompts,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		renders:  renders,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *ImageService) configured() bool {
	return s.renderer != nil && s.objects != nil && s.prompts != nil
}

// GenerateImage renders, uploads and records one image for a draft.
func (s *ImageService) GenerateImage(ctx context.Context, req GenerateImageRequest) (*models.ImageResult, error) {
	if !s.configured() {
		return nil, ErrServiceNotConfigured
	}
	style := req.Style
	if style == "" {
		style = models.StyleInfographic
	}
	if !style.Synthesized() {
		return nil, invalidf("style %q cannot be rendered", style)
	}

	ctx, span := s.tracer.Start(ctx, "images.generate", trace.WithAttributes(
		attribute.String("draft_id", req.DraftID),
		attribute.String("style", string(style)),
	))
	defer span.End()

	draft, err := s.store.GetDraft(ctx, req.DraftID)
	if err != nil {
		return nil, notFound("draft", req.DraftID, err)
	}

	prompt := strings.TrimSpace(req.CustomPrompt)
	if prompt == "" {
		brand := s.kb.BrandGuidelines(ctx, draft.WorkspaceID)
		prompt = s.scenePrompt(ctx, draft.ContentText, brand, style)
	}
	ratio := req.AspectRatio.Normalize()

	id := s.newID()
	path := fmt.Sprintf("images/%s/%s.png", draft.WorkspaceID, id)
	data, err := s.renderAndUpload(ctx, path, prompt, ratio, req.IncludeLogo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "image not produced")
		return nil, err
	}

	img := &models.Image{
		ID:          id,
		WorkspaceID: draft.WorkspaceID,
		DraftID:     draft.ID,
		Prompt:      prompt,
		Model:       s.renderer.Model(),
		StoragePath: path,
		AspectRatio: ratio,
		Style:       style,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateImage(ctx, img); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	s.logger.Info("generated image", "draft_id", draft.ID, "image_id", id, "style", style, "aspect_ratio", ratio, "bytes", len(data))
	return s.result(img), nil
}

// renderAndUpload synthesizes the image and stores it under path, both within s.timeout.
func (s *ImageService) renderAndUpload(ctx context.Context, path, prompt string, ratio models.AspectRatio, includeLogo bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.render(ctx, prompt, ratio, includeLogo)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Upload(ctx, path, data, "image/png"); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	return data, nil
}

// GenerateBatch renders images concurrently. Failed tasks are logged and left out;
// the successful ones are returned in submission order. A batch where every task
// fails returns an empty list, not an error.
func (s *ImageService) GenerateBatch(ctx context.Context, req BatchRequest) (*models.BatchImageResult, error) {
	if !s.configured() {
		return nil, ErrServiceNotConfigured
	}
	styles := batchStyles(req.Count, req.Styles)

	results := make([]*models.ImageResult, len(styles))
	var g errgroup.Group
	for i, style := range styles {
		g.Go(func() error {
			res, err := s.GenerateImage(ctx, GenerateImageRequest{
				DraftID:     req.DraftID,
				AspectRatio: req.AspectRatio,
				Style:       style,
				IncludeLogo: req.IncludeLogo,
			})
			if err != nil {
				s.logger.Error("image generation failed", "draft_id", req.DraftID, "style", style, "task", i, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &models.BatchImageResult{DraftID: req.DraftID, Images: make([]models.ImageResult, 0, len(styles))}
	for _, r := range results {
		if r != nil {
			out.Images = append(out.Images, *r)
		}
	}
	return out, nil
}

// RegenerateImage renders a new image from an existing one's prompt, style and ratio.
// The original row is kept.
func (s *ImageService) RegenerateImage(ctx context.Context, imageID string) (*models.ImageResult, error) {
	if !s.configured() {
		return nil, ErrServiceNotConfigured
	}
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, notFound("image", imageID, err)
	}
	if !img.Style.Synthesized() {
		return nil, invalidf("%s images cannot be regenerated", img.Style)
	}
	return s.GenerateImage(ctx, GenerateImageRequest{
		DraftID:      img.DraftID,
		AspectRatio:  img.AspectRatio,
		Style:        img.Style,
		CustomPrompt: img.Prompt,
		IncludeLogo:  true,
	})
}

// SaveSourceImages records external image URLs as pass-through images of a draft.
// URLs that fail to save are logged and skipped.
func (s *ImageService) SaveSourceImages(ctx context.Context, workspaceID, draftID string, urls []string) []models.ImageResult {
	out := make([]models.ImageResult, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		img := &models.Image{
			ID:          s.newID(),
			WorkspaceID: workspaceID,
			DraftID:     draftID,
			Prompt:      sourceImagePrompt,
			Model:       sourceImageModel,
			StoragePath: u,
			AspectRatio: models.DefaultAspectRatio,
			Style:       models.StyleOriginal,
			CreatedAt:   s.now(),
		}
		if err := s.store.CreateImage(ctx, img); err != nil {
			s.logger.Error("failed to save source image", "draft_id", draftID, "url", u, "error", err)
			continue
		}
		out = append(out, *s.result(img))
	}
	return out
}

// LinkImages gives a draft new rows pointing at already stored images, without rendering.
// It returns the rows that were written and the joined errors of those that were not.
func (s *ImageService) LinkImages(ctx context.Context, workspaceID, draftID string, images []models.ImageResult) ([]models.ImageResult, error) {
	out := make([]models.ImageResult, 0, len(images))
	var errs []error
	for _, src := range images {
		img := &models.Image{
			ID:          s.newID(),
			WorkspaceID: workspaceID,
			DraftID:     draftID,
			Prompt:      src.Prompt,
			Model:       src.Model,
			StoragePath: src.StoragePath,
			AspectRatio: src.AspectRatio,
			Style:       src.Style,
			CreatedAt:   s.now(),
		}
		if img.Model == "" {
			img.Model = sharedImageModel
		}
		if img.Style == "" {
			img.Style = models.StyleShared
		}
		if img.AspectRatio == "" {
			img.AspectRatio = models.DefaultAspectRatio
		}
		if err := s.store.CreateImage(ctx, img); err != nil {
			errs = append(errs, fmt.Errorf("link image %s: %w", src.ImageID, err))
			continue
		}
		out = append(out, *s.result(img))
	}
	return out, errors.Join(errs...)
}

// ListDraftImages returns the images owned by a draft, shared links included.
func (s *ImageService) ListDraftImages(ctx context.Context, draftID string) ([]models.ImageResult, error) {
	if _, err := s.store.GetDraft(ctx, draftID); err != nil {
		return nil, notFound("draft", draftID, err)
	}
	images, err := s.store.ListImagesByDraft(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	out := make([]models.ImageResult, 0, len(images))
	for i := range images {
		out = append(out, *s.result(&images[i]))
	}
	return out, nil
}

// render synthesizes pixels and applies the brand mark. In reference mode the logo is
// handed to the model; if that fails the image is rendered plain and composited.
func (s *ImageService) render(ctx context.Context, prompt string, ratio models.AspectRatio, includeLogo bool) ([]byte, error) {
	withLogo := includeLogo && s.brand != nil

	if withLogo && s.logoMode == LogoReference {
		data, err := s.synthesize(ctx, imagegen.RenderRequest{
			Prompt:      s.prompts.RenderOrEmpty(prompts.LogoReference, prompts.Vars{"prompt": prompt}),
			AspectRatio: ratio,
			Reference:   s.brand.Reference(),
		})
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("logo reference render failed, compositing instead", "error", err)
	}

	data, err := s.synthesize(ctx, imagegen.RenderRequest{Prompt: prompt, AspectRatio: ratio})
	if err != nil {
		return nil, err
	}
	if !withLogo {
		return data, nil
	}
	stamped, err := s.brand.Composite(data)
	if err != nil {
		s.logger.Warn("logo overlay failed, keeping image without logo", "error", err)
		return data, nil
	}
	return stamped, nil
}

func (s *ImageService) synthesize(ctx context.Context, req imagegen.RenderRequest) ([]byte, error) {
	data, err := s.renderer.Render(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("image synthesis failed: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image synthesis failed: %w", imagegen.ErrNoImage)
	}
	if s.renders != nil {
		s.renders.Add(ctx, 1, metric.WithAttributes(attribute.String("model", s.renderer.Model())))
	}
	png, err := imagegen.EnsurePNG(data)
	if err != nil {
		return nil, fmt.Errorf("image synthesis failed: %w", err)
	}
	return png, nil
}

// scenePrompt asks the scene model for a concrete brief grounded in the post. When that
// call fails it falls back to the style instructions plus a post excerpt.
func (s *ImageService) scenePrompt(ctx context.Context, content, brand string, style models.ImageStyle) string {
	styleText := s.prompts.RenderOrEmpty(prompts.Style(string(style)), nil)
	if styleText == "" {
		styleText = s.prompts.RenderOrEmpty(prompts.Style(string(models.StyleMinimal)), nil)
	}

	if s.scene != nil {
		scene, err := s.writeScene(ctx, content, brand, style, styleText)
		if err == nil {
			s.logger.Debug("scene description", "style", style, "chars", len(scene))
			return scene
		}
		s.logger.Warn("scene description failed, using fallback", "style", style, "error", err)
	}

	return strings.TrimSpace(s.prompts.RenderOrEmpty(prompts.SceneFallback, prompts.Vars{
		"style":   styleText,
		"content": models.TruncateText(content, sceneFallbackContent),
	}))
}

func (s *ImageService) writeScene(ctx context.Context, content, brand string, style models.ImageStyle, styleText string) (string, error) {
	if strings.TrimSpace(brand) == "" {
		brand = defaultBrandLook
	}
	rule := prompts.TextForbidden
	if style.AllowsText() {
		rule = prompts.TextAllowed
	}
	req, err := s.prompts.Render(prompts.Scene, prompts.Vars{
		"style":     styleText,
		"content":   content,
		"brand":     strings.TrimSpace(brand),
		"text_rule": s.prompts.RenderOrEmpty(rule, nil),
	})
	if err != nil {
		return "", err
	}
	out, err := s.scene.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty scene description")
	}
	return out, nil
}

func (s *ImageService) result(img *models.Image) *models.ImageResult {
	return &models.ImageResult{
		ImageID:     img.ID,
		DraftID:     img.DraftID,
		Prompt:      img.Prompt,
		Model:       img.Model,
		StoragePath: img.StoragePath,
		URL:         s.publicURL(img.StoragePath),
		AspectRatio: img.AspectRatio,
		Style:       img.Style,
	}
}

func (s *ImageService) publicURL(path string) string {
	if s.objects != nil {
		return s.objects.PublicURL(path)
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return ""
}

// batchStyles returns one style per task: the requested styles padded with the last
// one, or the default styles when none are given. Count is clamped to 1..4.
func batchStyles(count int, styles []models.ImageStyle) []models.ImageStyle {
	if len(styles) == 0 {
		styles = models.DefaultImageStyles
	}
	if count <= 0 {
		count = len(styles)
	}
	if count > maxBatchImages {
		count = maxBatchImages
	}
	out := make([]models.ImageStyle, count)
	for i := range out {
		if i < len(styles) {
			out[i] = styles[i]
		} else {
			out[i] = styles[len(styles)-1]
		}
	}
	return out
}
