package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// requestTimeout caps each Storage API call, including reading the response.
const requestTimeout = 60 * time.Second

// SupabaseStore talks to the Supabase Storage REST API with the service role key.
type SupabaseStore struct {
	baseURL string
	bucket  string
	apiKey  string
	client  *http.Client
}

// NewSupabaseStore creates a store for bucket. The service key is sent as a bearer token.
func NewSupabaseStore(baseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase storage requires url and service key")
	}
	if bucket == "" {
		bucket = "generated-images"
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: serviceKey, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = requestTimeout
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		apiKey:  serviceKey,
		client:  client,
	}, nil
}

// Upload stores data at path, overwriting any existing object.
func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	clean, err := cleanObjectPath(path)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, clean)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to upload object: status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// PublicURL returns the public bucket URL for path.
func (s *SupabaseStore) PublicURL(path string) string {
	if isAbsoluteURL(path) {
		return path
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimLeft(path, "/"))
}
