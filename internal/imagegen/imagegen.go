// Package imagegen renders images from text prompts. Backends are interchangeable
// behind Renderer and chosen by configuration.
package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/webp"

	"contenthub/backend/pkg/models"
)

var (
	// ErrNotConfigured is returned when the image backend has no credentials.
	ErrNotConfigured = errors.New("image backend not configured")
	// ErrNoImage is returned when the model answered without image data.
	ErrNoImage = errors.New("no image data in response")
	// ErrReferenceUnsupported is returned by backends that cannot take a reference image.
	ErrReferenceUnsupported = errors.New("reference images not supported by backend")
)

// RenderRequest describes one image to synthesize.
type RenderRequest struct {
	Prompt      string
	AspectRatio models.AspectRatio
	// Reference is an optional PNG passed to the model alongside the prompt (the brand logo).
	Reference []byte
}

// Renderer synthesizes PNG bytes from a prompt.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
	Model() string
}

// Settings selects an image backend.
type Settings struct {
	Backend string
	APIKey  string
	Model   string
}

// New builds the configured backend.
func New(ctx context.Context, s Settings) (Renderer, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	switch strings.ToLower(s.Backend) {
	case "", "gemini":
		return NewGeminiRenderer(ctx, s.APIKey, s.Model)
	case "imagen":
		return NewImagenRenderer(ctx, s.APIKey, s.Model)
	case "openai":
		return NewOpenAIRenderer(s.APIKey, s.Model)
	}
	return nil, fmt.Errorf("unknown image backend %q", s.Backend)
}

// EnsurePNG re-encodes data as PNG unless it already is one.
func EnsurePNG(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, pngSignature) {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// orientation classifies a ratio as square (0), landscape (1) or portrait (-1).
func orientation(r models.AspectRatio) int {
	var w, h int
	if _, err := fmt.Sscanf(string(r.Normalize()), "%d:%d", &w, &h); err != nil || w == h {
		return 0
	}
	if w > h {
		return 1
	}
	return -1
}
