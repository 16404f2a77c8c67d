package services

import (
	"errors"
	"fmt"

	"contenthub/backend/internal/repository"
)

var (
	// ErrNoSources means neither custom text nor any usable source was available.
	ErrNoSources = errors.New("no sources available for generation, provide source ids or custom text")
	// ErrServiceNotConfigured means a required model or storage backend has no credentials.
	ErrServiceNotConfigured = errors.New("service not configured")
	ErrNotFound             = errors.New("not found")
	ErrInvalidArgument      = errors.New("invalid argument")
	// ErrEmptyGeneration means the writer returned no usable variant.
	ErrEmptyGeneration = errors.New("model returned no content variants")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// notFound translates a repository miss into ErrNotFound and wraps anything else.
func notFound(what, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}
