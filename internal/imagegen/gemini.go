package imagegen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"contenthub/backend/pkg/models"
)

// DefaultGeminiImageModel is the native multimodal image model.
const DefaultGeminiImageModel = "gemini-3-pro-image-preview"

// GeminiRenderer uses a native multimodal Gemini model. It accepts a reference image.
type GeminiRenderer struct {
	client *genai.Client
	model  string
}

// NewGeminiRenderer creates a GeminiRenderer.
func NewGeminiRenderer(ctx context.Context, apiKey, model string) (*GeminiRenderer, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultGeminiImageModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiRenderer{client: client, model: model}, nil
}

func (g *GeminiRenderer) Model() string { return g.model }

// Render asks for an IMAGE-only response at the normalized aspect ratio.
func (g *GeminiRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Reference) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Reference, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: string(req.AspectRatio.Normalize()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image (%s): %w", g.model, err)
	}
	return firstInlineImage(resp)
}

func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, ErrNoImage
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if strings.HasPrefix(part.InlineData.MIMEType, "image/") && len(part.InlineData.Data) > 0 {
				return EnsurePNG(part.InlineData.Data)
			}
		}
	}
	return nil, ErrNoImage
}

// imagenRatios are the ratios Imagen accepts; others map to the closest orientation.
var imagenRatios = map[models.AspectRatio]bool{"1:1": true, "3:4": true, "4:3": true, "9:16": true, "16:9": true}

// ImagenRenderer uses a dedicated text-to-image model through the same API.
type ImagenRenderer struct {
	client *genai.Client
	model  string
}

// NewImagenRenderer creates an ImagenRenderer.
func NewImagenRenderer(ctx context.Context, apiKey, model string) (*ImagenRenderer, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "imagen-4.0-generate-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ImagenRenderer{client: client, model: model}, nil
}

func (r *ImagenRenderer) Model() string { return r.model }

func (r *ImagenRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	if len(req.Reference) > 0 {
		return nil, ErrReferenceUnsupported
	}
	resp, err := r.client.Models.GenerateImages(ctx, r.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    string(imagenRatio(req.AspectRatio)),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, fmt.Errorf("imagen (%s): %w", r.model, err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, ErrNoImage
	}
	data := resp.GeneratedImages[0].Image.ImageBytes
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	return EnsurePNG(data)
}

func imagenRatio(r models.AspectRatio) models.AspectRatio {
	r = r.Normalize()
	if imagenRatios[r] {
		return r
	}
	switch orientation(r) {
	case 1:
		return "16:9"
	case -1:
		return "9:16"
	}
	return "1:1"
}
