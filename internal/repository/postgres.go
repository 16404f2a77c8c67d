package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contenthub/backend/internal/logging"
	"contenthub/backend/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *logging.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() { s.db.Close() }

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// --- sources ---

const sourceColumns = `id, workspace_id, type, url, title, author, published_at, thumbnail_url,
	raw_text, cleaned_text, summary, key_points, status, created_at, updated_at`

func scanSource(row pgx.Row) (models.Source, error) {
	var src models.Source
	err := row.Scan(&src.ID, &src.WorkspaceID, &src.Type, &src.URL, &src.Title, &src.Author, &src.PublishedAt,
		&src.ThumbnailURL, &src.RawText, &src.CleanedText, &src.Summary, &src.KeyPoints, &src.Status,
		&src.CreatedAt, &src.UpdatedAt)
	return src, err
}

// ListSources returns sources matching q.
func (s *PostgresStore) ListSources(ctx context.Context, q SourceQuery) ([]models.Source, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(q.IDs) > 0 {
		rows, err = s.db.Query(ctx,
			"SELECT "+sourceColumns+" FROM sources WHERE workspace_id = $1 AND id = ANY($2) ORDER BY created_at DESC",
			q.WorkspaceID, q.IDs)
	} else {
		limit := q.Limit
		if limit <= 0 {
			limit = 5
		}
		rows, err = s.db.Query(ctx,
			"SELECT "+sourceColumns+" FROM sources WHERE workspace_id = $1 AND ($2 = '' OR status = $2) ORDER BY created_at DESC LIMIT $3",
			q.WorkspaceID, string(q.Status), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// CreateSource inserts a source.
func (s *PostgresStore) CreateSource(ctx context.Context, src *models.Source) error {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	if src.Status == "" {
		src.Status = models.SourceStatusNew
	}
	_, err := s.db.Exec(ctx, `INSERT INTO sources (`+sourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		src.ID, src.WorkspaceID, src.Type, src.URL, src.Title, src.Author, src.PublishedAt, src.ThumbnailURL,
		src.RawText, src.CleanedText, src.Summary, nonNil(src.KeyPoints), src.Status, src.CreatedAt, src.UpdatedAt)
	return err
}

// --- knowledge base ---

// ActiveDocuments returns active context documents of a workspace.
func (s *PostgresStore) ActiveDocuments(ctx context.Context, workspaceID string, keys ...string) ([]models.ContextDocument, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workspace_id, key, title, content_md, is_active, created_at, updated_at
		FROM kb_documents WHERE workspace_id = $1 AND is_active AND (cardinality($2::text[]) = 0 OR key = ANY($2))
		ORDER BY key`, workspaceID, nonNil(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.ContextDocument
	for rows.Next() {
		var d models.ContextDocument
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Key, &d.Title, &d.ContentMD, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ActiveExamplePosts returns up to limit active example posts for a platform.
func (s *PostgresStore) ActiveExamplePosts(ctx context.Context, workspaceID string, platform models.Platform, limit int) ([]models.ExamplePost, error) {
	rows, err := s.db.Query(ctx, `SELECT id, workspace_id, platform, content_md, is_active, created_at
		FROM example_posts WHERE workspace_id = $1 AND platform = $2 AND is_active
		ORDER BY created_at DESC LIMIT $3`, workspaceID, platform, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.ExamplePost
	for rows.Next() {
		var p models.ExamplePost
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Platform, &p.ContentMD, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpsertDocument inserts a document or replaces the one with the same key.
func (s *PostgresStore) UpsertDocument(ctx context.Context, doc *models.ContextDocument) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return s.db.QueryRow(ctx, `INSERT INTO kb_documents (id, workspace_id, key, title, content_md, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, key) DO UPDATE
		SET title = EXCLUDED.title, content_md = EXCLUDED.content_md, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
		RETURNING id`,
		doc.ID, doc.WorkspaceID, doc.Key, doc.Title, doc.ContentMD, doc.IsActive, doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
}

// CreateExamplePost inserts an example post.
func (s *PostgresStore) CreateExamplePost(ctx context.Context, post *models.ExamplePost) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO example_posts (id, workspace_id, platform, content_md, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		post.ID, post.WorkspaceID, post.Platform, post.ContentMD, post.IsActive, post.CreatedAt)
	return err
}

// --- drafts ---

const draftColumns = `id, workspace_id, platform, run_id, content_text, variants, hashtags, source_ids, funnel_stage, created_at, updated_at`

func scanDraft(row pgx.Row) (*models.Draft, error) {
	var (
		d     models.Draft
		runID *string
		stage *string
	)
	if err := row.Scan(&d.ID, &d.WorkspaceID, &d.Platform, &runID, &d.ContentText, &d.Variants, &d.Hashtags,
		&d.SourceIDs, &stage, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if runID != nil {
		d.RunID = *runID
	}
	if stage != nil {
		d.FunnelStage = models.FunnelStage(*stage)
	}
	return &d, nil
}

// CreateDraft inserts a draft.
func (s *PostgresStore) CreateDraft(ctx context.Context, d *models.Draft) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	variants := d.Variants
	if variants == nil {
		variants = []models.Variant{}
	}
	_, err := s.db.Exec(ctx, `INSERT INTO drafts (`+draftColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.WorkspaceID, d.Platform, nullIfEmpty(d.RunID), d.ContentText, variants, nonNil(d.Hashtags),
		nonNil(d.SourceIDs), nullIfEmpty(string(d.FunnelStage)), d.CreatedAt, d.UpdatedAt)
	return err
}

// GetDraft retrieves a draft by its ID.
func (s *PostgresStore) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	d, err := scanDraft(s.db.QueryRow(ctx, "SELECT "+draftColumns+" FROM drafts WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// UpdateDraftContent replaces the selected content of a draft.
func (s *PostgresStore) UpdateDraftContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx, "UPDATE drafts SET content_text = $1, updated_at = $2 WHERE id = $3", content, updatedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDraftFunnelStage sets the funnel stage of a draft.
func (s *PostgresStore) UpdateDraftFunnelStage(ctx context.Context, id string, stage models.FunnelStage) error {
	tag, err := s.db.Exec(ctx, "UPDATE drafts SET funnel_stage = $1, updated_at = $2 WHERE id = $3", string(stage), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnclassifiedDrafts returns the newest drafts that have no funnel stage.
func (s *PostgresStore) ListUnclassifiedDrafts(ctx context.Context, workspaceID string, limit int) ([]models.Draft, error) {
	rows, err := s.db.Query(ctx, "SELECT "+draftColumns+` FROM drafts
		WHERE workspace_id = $1 AND funnel_stage IS NULL ORDER BY created_at DESC LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

// FunnelEntries returns the platform and stage of drafts and published posts.
func (s *PostgresStore) FunnelEntries(ctx context.Context, workspaceID string, since *time.Time) ([]models.FunnelEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT platform, COALESCE(funnel_stage, '') FROM drafts
		WHERE workspace_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		UNION ALL
		SELECT platform, COALESCE(funnel_stage, '') FROM published_posts
		WHERE workspace_id = $1 AND ($2::timestamptz IS NULL OR published_at >= $2)`,
		workspaceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.FunnelEntry
	for rows.Next() {
		var e models.FunnelEntry
		if err := rows.Scan(&e.Platform, &e.FunnelStage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatePublishedPost records a published post.
func (s *PostgresStore) CreatePublishedPost(ctx context.Context, p *models.PublishedPost) error {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO published_posts (id, workspace_id, draft_id, platform, funnel_stage, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.WorkspaceID, nullIfEmpty(p.DraftID), p.Platform, nullIfEmpty(string(p.FunnelStage)), p.PublishedAt)
	return err
}

// --- images ---

const imageColumns = `id, workspace_id, draft_id, prompt, model, storage_path, aspect_ratio, style, created_at`

func scanImage(row pgx.Row) (*models.Image, error) {
	var img models.Image
	if err := row.Scan(&img.ID, &img.WorkspaceID, &img.DraftID, &img.Prompt, &img.Model, &img.StoragePath,
		&img.AspectRatio, &img.Style, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

// CreateImage inserts an image record.
func (s *PostgresStore) CreateImage(ctx context.Context, img *models.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO images (`+imageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		img.ID, img.WorkspaceID, img.DraftID, img.Prompt, img.Model, img.StoragePath, img.AspectRatio, img.Style, img.CreatedAt)
	return err
}

// GetImage retrieves an image by its ID.
func (s *PostgresStore) GetImage(ctx context.Context, id string) (*models.Image, error) {
	img, err := scanImage(s.db.QueryRow(ctx, "SELECT "+imageColumns+" FROM images WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return img, nil
}

// ListImagesByDraft returns the images owned by a draft.
func (s *PostgresStore) ListImagesByDraft(ctx context.Context, draftID string) ([]models.Image, error) {
	rows, err := s.db.Query(ctx, "SELECT "+imageColumns+" FROM images WHERE draft_id = $1 ORDER BY created_at, id", draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}
