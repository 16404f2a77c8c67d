// Package storage uploads generated images and resolves their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore is the only storage dependency of the image orchestrator.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	// PublicURL returns the browser reachable URL of path. Absolute URLs are returned unchanged.
	PublicURL(path string) string
}

// ErrInvalidPath rejects object paths that are empty or escape the store root.
var ErrInvalidPath = errors.New("invalid object path")

func isAbsoluteURL(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func cleanObjectPath(p string) (string, error) {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// LocalStore writes objects below a directory and serves them from BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string // e.g. "http://localhost:8080/files"
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	clean, err := cleanObjectPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	full := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStore) PublicURL(path string) string {
	if isAbsoluteURL(path) {
		return path
	}
	return s.BaseURL + "/" + strings.TrimLeft(path, "/")
}
