package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contenthub/backend/internal/imagegen"
	"contenthub/backend/internal/kb"
	"contenthub/backend/pkg/models"
)

func promptHas(fragment string) interface{} {
	return mock.MatchedBy(func(req imagegen.RenderRequest) bool {
		return strings.Contains(req.Prompt, fragment)
	})
}

func (f *fixture) withBrand(t *testing.T, mode string) *ImageService {
	t.Helper()
	brand, err := imagegen.NewBrandMark(pngBytes(t, 4, 4, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	return NewImageService(ImageDeps{
		Store:     f.store,
		Knowledge: kb.NewLoader(f.store, nil),
		Renderer:  f.renderer,
		Objects:   f.objects,
		Brand:     brand,
		LogoMode:  mode,
		Prompts:   testPrompts(t),
	})
}

func TestGenerateBatch_PartialFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "Three steps to faster builds")
	f.renderer.On("Render", mock.Anything, promptHas("side-by-side comparison")).Return(nil, errors.New("safety filter"))
	f.renderer.On("Render", mock.Anything, mock.Anything).Return(pngBytes(t, 8, 8, color.White), nil)

	res, err := f.images.GenerateBatch(context.Background(), BatchRequest{
		DraftID: "d1",
		Count:   3,
		Styles:  []models.ImageStyle{models.StyleInfographic, models.StyleComparison, models.StyleFlow},
	})
	require.NoError(t, err)
	require.Len(t, res.Images, 2)
	assert.Equal(t, models.StyleInfographic, res.Images[0].Style)
	assert.Equal(t, models.StyleFlow, res.Images[1].Style)
	assert.Equal(t, 2, f.objects.count())
	f.renderer.AssertNumberOfCalls(t, "Render", 3)
}

func TestGenerateBatch_AllFailuresIsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	f.renderer.On("Render", mock.Anything, mock.Anything).Return([]byte{}, nil)

	res, err := f.images.GenerateBatch(context.Background(), BatchRequest{DraftID: "d1"})
	require.NoError(t, err)
	assert.NotNil(t, res.Images)
	assert.Empty(t, res.Images)
	f.renderer.AssertNumberOfCalls(t, "Render", len(models.DefaultImageStyles))
}

// stallRenderer makes every Render block until its context ends.
func (f *fixture) stallRenderer() {
	f.renderer.On("Render", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)
}

func (f *fixture) withTimeout(t *testing.T, d time.Duration) *ImageService {
	t.Helper()
	return NewImageService(ImageDeps{
		Store:     f.store,
		Knowledge: kb.NewLoader(f.store, nil),
		Renderer:  f.renderer,
		Objects:   f.objects,
		Prompts:   testPrompts(t),
		Timeout:   d,
	})
}

func TestNewImageService_Timeout(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, defaultImageTimeout, f.images.timeout)
	assert.Equal(t, 2*time.Second, f.withTimeout(t, 2*time.Second).timeout)
	assert.Equal(t, defaultImageTimeout, f.withTimeout(t, -1).timeout)
}

func TestGenerateBatch_StalledRendererTimesOut(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	f.stallRenderer()
	svc := f.withTimeout(t, 50*time.Millisecond)

	start := time.Now()
	res, err := svc.GenerateBatch(context.Background(), BatchRequest{DraftID: "d1", Count: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Images)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, f.objects.count())
}

func TestBatchStyles(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		styles []models.ImageStyle
		want   []models.ImageStyle
	}{
		{name: "defaults", want: models.DefaultImageStyles},
		{name: "padded with last style", count: 3, styles: []models.ImageStyle{models.StyleFlow}, want: []models.ImageStyle{models.StyleFlow, models.StyleFlow, models.StyleFlow}},
		{name: "count truncates", count: 1, styles: []models.ImageStyle{models.StyleQuote, models.StyleFlow}, want: []models.ImageStyle{models.StyleQuote}},
		{name: "clamped to four", count: 9, styles: []models.ImageStyle{models.StyleConcept}, want: []models.ImageStyle{models.StyleConcept, models.StyleConcept, models.StyleConcept, models.StyleConcept}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batchStyles(tt.count, tt.styles))
		})
	}
}

func TestGenerateImage_RecordsAndUploads(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "Ship small changes often")
	f.renderer.On("Render", mock.Anything, mock.MatchedBy(func(req imagegen.RenderRequest) bool {
		return req.AspectRatio == models.DefaultAspectRatio && req.Reference == nil &&
			strings.Contains(req.Prompt, "process flowchart") &&
			strings.Contains(req.Prompt, "Ship small changes often")
	})).Return(pngBytes(t, 8, 8, color.White), nil)

	res, err := f.images.GenerateImage(context.Background(), GenerateImageRequest{
		DraftID:     "d1",
		Style:       models.StyleFlow,
		AspectRatio: "7:3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAspectRatio, res.AspectRatio)
	assert.Equal(t, "mock-image-model", res.Model)
	assert.Equal(t, "images/ws/"+res.ImageID+".png", res.StoragePath)

	stored, err := f.store.GetImage(context.Background(), res.ImageID)
	require.NoError(t, err)
	assert.Equal(t, res.Prompt, stored.Prompt)
	assert.Equal(t, "d1", stored.DraftID)
	f.renderer.AssertExpectations(t)
}

func TestGenerateImage_Errors(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")

	_, err := f.images.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.images.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1", Style: models.StyleOriginal})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	bare := NewImageService(ImageDeps{Store: f.store})
	_, err = bare.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1"})
	assert.ErrorIs(t, err, ErrServiceNotConfigured)
	_, err = bare.GenerateBatch(context.Background(), BatchRequest{DraftID: "d1"})
	assert.ErrorIs(t, err, ErrServiceNotConfigured)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestRegenerateImage_ReusesPromptAndRatio(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	require.NoError(t, f.store.CreateImage(context.Background(), &models.Image{
		ID:          "img-1",
		WorkspaceID: "ws",
		DraftID:     "d1",
		Prompt:      "A lighthouse at dusk",
		Model:       "old-model",
		StoragePath: "images/ws/img-1.png",
		AspectRatio: "16:9",
		Style:       models.StyleConcept,
	}))
	f.renderer.On("Render", mock.Anything, imagegen.RenderRequest{Prompt: "A lighthouse at dusk", AspectRatio: "16:9"}).
		Return(pngBytes(t, 8, 8, color.Black), nil)

	res, err := f.images.RegenerateImage(context.Background(), "img-1")
	require.NoError(t, err)
	assert.NotEqual(t, "img-1", res.ImageID)
	assert.Equal(t, "A lighthouse at dusk", res.Prompt)
	assert.Equal(t, models.StyleConcept, res.Style)
	assert.Equal(t, models.AspectRatio("16:9"), res.AspectRatio)

	old, err := f.store.GetImage(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, "old-model", old.Model)
	f.renderer.AssertExpectations(t)
}

func TestRegenerateImage_Errors(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	_, err := f.images.RegenerateImage(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	links, err := f.images.LinkImages(context.Background(), "ws", "d1", []models.ImageResult{{ImageID: "x", StoragePath: "images/ws/x.png"}})
	require.NoError(t, err)
	_, err = f.images.RegenerateImage(context.Background(), links[0].ImageID)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRender_LogoReferenceFallsBackToComposite(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	svc := f.withBrand(t, LogoReference)

	f.renderer.On("Render", mock.Anything, mock.MatchedBy(func(req imagegen.RenderRequest) bool {
		return req.Reference != nil
	})).Return(nil, imagegen.ErrReferenceUnsupported)
	f.renderer.On("Render", mock.Anything, mock.MatchedBy(func(req imagegen.RenderRequest) bool {
		return req.Reference == nil && !strings.Contains(req.Prompt, "brand logo")
	})).Return(pngBytes(t, 100, 100, color.White), nil)

	res, err := svc.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1", IncludeLogo: true, CustomPrompt: "scene"})
	require.NoError(t, err)
	f.renderer.AssertNumberOfCalls(t, "Render", 2)
	assert.Equal(t, "scene", res.Prompt)

	img, _, err := image.Decode(bytes.NewReader(f.objects.objects[res.StoragePath]))
	require.NoError(t, err)
	r, g, _, _ := img.At(95, 4).RGBA()
	assert.Greater(t, r, g, "logo stamped in the top-right corner")
}

func TestRender_LogoReferenceSucceeds(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	svc := f.withBrand(t, LogoReference)
	f.renderer.On("Render", mock.Anything, mock.MatchedBy(func(req imagegen.RenderRequest) bool {
		return req.Reference != nil && strings.HasPrefix(req.Prompt, "scene") && strings.Contains(req.Prompt, "brand logo")
	})).Return(pngBytes(t, 8, 8, color.White), nil)

	res, err := svc.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1", IncludeLogo: true, CustomPrompt: "scene"})
	require.NoError(t, err)
	assert.Equal(t, "scene", res.Prompt)
	f.renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestRender_CompositeModeAndNoLogo(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformLinkedIn, "post")
	svc := f.withBrand(t, LogoComposite)
	f.renderer.On("Render", mock.Anything, imagegen.RenderRequest{Prompt: "scene", AspectRatio: models.DefaultAspectRatio}).
		Return(pngBytes(t, 100, 100, color.White), nil)

	_, err := svc.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1", IncludeLogo: true, CustomPrompt: "scene"})
	require.NoError(t, err)
	_, err = svc.GenerateImage(context.Background(), GenerateImageRequest{DraftID: "d1", CustomPrompt: "scene"})
	require.NoError(t, err)
	f.renderer.AssertNumberOfCalls(t, "Render", 2)
}

func TestScenePrompt_UsesSceneWriter(t *testing.T) {
	f := newFixture(t)
	f.llm.on("scene", "  A developer watching a green pipeline.  ")
	svc := NewImageService(ImageDeps{
		Store:       f.store,
		Knowledge:   kb.NewLoader(f.store, nil),
		SceneWriter: f.llm,
		Renderer:    f.renderer,
		Objects:     f.objects,
		Prompts:     testPrompts(t),
	})

	got := svc.scenePrompt(context.Background(), "Our CI is fast now", "", models.StyleConcept)
	assert.Equal(t, "A developer watching a green pipeline.", got)

	req := f.llm.calls("scene")[0]
	assert.Contains(t, req, defaultBrandLook)
	assert.Contains(t, req, "Do NOT include any text")

	svc.scenePrompt(context.Background(), "post", "Navy and white", models.StyleFlow)
	req = f.llm.calls("scene")[1]
	assert.Contains(t, req, "Navy and white")
	assert.Contains(t, req, "You MAY include short text labels")
}

func TestScenePrompt_FallsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.failOn("scene", errors.New("timeout"))
	svc := NewImageService(ImageDeps{Store: f.store, Knowledge: kb.NewLoader(f.store, nil), SceneWriter: f.llm, Prompts: testPrompts(t)})

	content := strings.Repeat("x", 500)
	got := svc.scenePrompt(context.Background(), content, "", models.StyleInfographic)
	assert.Contains(t, got, "single-page infographic")
	assert.Contains(t, got, models.TruncateText(content, sceneFallbackContent))
	assert.NotContains(t, got, content)
	assert.Contains(t, got, "No text, words, letters")
}

func TestLinkImages_CopiesAndIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d2", models.PlatformX, "post")
	src := []models.ImageResult{
		{ImageID: "a", Prompt: "p", Model: "m", StoragePath: "images/ws/a.png", AspectRatio: "4:5", Style: models.StyleFlow},
		{ImageID: "b", StoragePath: "images/ws/b.png"},
	}

	links, err := f.images.LinkImages(context.Background(), "ws", "d2", src)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "m", links[0].Model)
	assert.Equal(t, models.StyleFlow, links[0].Style)
	assert.Equal(t, "shared", links[1].Model)
	assert.Equal(t, models.StyleShared, links[1].Style)
	assert.Equal(t, models.DefaultAspectRatio, links[1].AspectRatio)
	assert.Equal(t, "https://cdn.test/images/ws/b.png", links[1].URL)

	f.store.failImagesFor["d3"] = true
	links, err = f.images.LinkImages(context.Background(), "ws", "d3", src)
	assert.Error(t, err)
	assert.Empty(t, links)
}

func TestListDraftImages(t *testing.T) {
	f := newFixture(t)
	f.addDraft("d1", models.PlatformX, "post")
	f.images.SaveSourceImages(context.Background(), "ws", "d1", []string{"https://example.com/a.jpg"})

	got, err := f.images.ListDraftImages(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/a.jpg", got[0].URL)

	_, err = f.images.ListDraftImages(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
