package repository

import (
	"context"
	"errors"
	"time"

	"contenthub/backend/pkg/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// SourceQuery filters sources. When IDs is set, Status and Limit are ignored.
type SourceQuery struct {
	WorkspaceID string
	IDs         []string
	Status      models.SourceStatus
	Limit       int
}

// SourceRepository reads and creates ingested sources.
type SourceRepository interface {
	// ListSources returns sources of a workspace, newest first unless IDs are given.
	ListSources(ctx context.Context, q SourceQuery) ([]models.Source, error)
	CreateSource(ctx context.Context, src *models.Source) error
}

// KnowledgeRepository holds the per-workspace context documents and example posts.
type KnowledgeRepository interface {
	// ActiveDocuments returns active documents whose key is in keys (all keys when empty).
	ActiveDocuments(ctx context.Context, workspaceID string, keys ...string) ([]models.ContextDocument, error)
	ActiveExamplePosts(ctx context.Context, workspaceID string, platform models.Platform, limit int) ([]models.ExamplePost, error)
	// UpsertDocument inserts or replaces the document with the same workspace and key.
	UpsertDocument(ctx context.Context, doc *models.ContextDocument) error
	CreateExamplePost(ctx context.Context, post *models.ExamplePost) error
}

// DraftStore persists generated drafts.
type DraftStore interface {
	CreateDraft(ctx context.Context, d *models.Draft) error
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	UpdateDraftContent(ctx context.Context, id, content string, updatedAt time.Time) error
	UpdateDraftFunnelStage(ctx context.Context, id string, stage models.FunnelStage) error
	// ListUnclassifiedDrafts returns the newest drafts without a funnel stage.
	ListUnclassifiedDrafts(ctx context.Context, workspaceID string, limit int) ([]models.Draft, error)
	// FunnelEntries projects drafts and published posts created at or after since (all when nil).
	FunnelEntries(ctx context.Context, workspaceID string, since *time.Time) ([]models.FunnelEntry, error)
	CreatePublishedPost(ctx context.Context, p *models.PublishedPost) error
}

// ImageStore persists image records.
type ImageStore interface {
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
	// ListImagesByDraft returns a draft's images oldest first.
	ListImagesByDraft(ctx context.Context, draftID string) ([]models.Image, error)
}

// Repository is the full row store used by the server.
type Repository interface {
	SourceRepository
	KnowledgeRepository
	DraftStore
	ImageStore

	Ping(ctx context.Context) error
	Close()
}
