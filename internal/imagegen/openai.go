package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"contenthub/backend/pkg/models"
)

// OpenAIRenderer uses the OpenAI Images API.
type OpenAIRenderer struct {
	client openai.Client
	model  string
}

// NewOpenAIRenderer creates an OpenAIRenderer.
func NewOpenAIRenderer(apiKey, model string) (*OpenAIRenderer, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIRenderer{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

func (o *OpenAIRenderer) Model() string { return o.model }

func (o *OpenAIRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	if len(req.Reference) > 0 {
		return nil, ErrReferenceUnsupported
	}
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(o.model),
		N:      openai.Int(1),
		Size:   openAISize(o.model, req.AspectRatio),
	}
	if strings.HasPrefix(o.model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai image (%s): %w", o.model, err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return EnsurePNG(data)
}

// openAISize maps an aspect ratio onto the fixed sizes the API accepts.
func openAISize(model string, r models.AspectRatio) openai.ImageGenerateParamsSize {
	dalle := strings.HasPrefix(model, "dall-e-3")
	switch orientation(r) {
	case 1:
		if dalle {
			return openai.ImageGenerateParamsSize1792x1024
		}
		return openai.ImageGenerateParamsSize1536x1024
	case -1:
		if dalle {
			return openai.ImageGenerateParamsSize1024x1792
		}
		return openai.ImageGenerateParamsSize1024x1536
	}
	return openai.ImageGenerateParamsSize1024x1024
}
