// Package llm is the text generation gateway used by the content pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contenthub/backend/internal/logging"
)

// ErrNotConfigured is returned when a provider has no credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

// TextGenerator sends a prompt to a language model and returns the raw text reply.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Settings selects and tunes one text generator.
type Settings struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// New builds the configured provider client wrapped with retries.
func New(ctx context.Context, s Settings, logger *logging.Logger) (TextGenerator, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	var (
		gen TextGenerator
		err error
	)
	switch strings.ToLower(s.Provider) {
	case "", "gemini":
		gen, err = NewGeminiClient(ctx, s.APIKey, s.Model)
	case "openai":
		gen, err = NewOpenAIClient(s.APIKey, s.BaseURL, s.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(gen, s.MaxRetries, s.Timeout, logger), nil
}
