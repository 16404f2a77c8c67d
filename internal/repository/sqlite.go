package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"contenthub/backend/internal/logging"
	"contenthub/backend/pkg/models"
)

// Row types for the embedded store. Slices are stored as JSON text.

type sourceRow struct {
	ID           string `gorm:"primaryKey"`
	WorkspaceID  string `gorm:"index:idx_sources_ws_status"`
	Type         string
	URL          string
	Title        string
	Author       string
	PublishedAt  *time.Time
	ThumbnailURL string
	RawText      string
	CleanedText  string
	Summary      string
	KeyPoints    []string `gorm:"serializer:json"`
	Status       string   `gorm:"index:idx_sources_ws_status;default:new"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (sourceRow) TableName() string { return "sources" }

type documentRow struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"uniqueIndex:idx_kb_ws_key"`
	Key         string `gorm:"uniqueIndex:idx_kb_ws_key"`
	Title       string
	ContentMD   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (documentRow) TableName() string { return "kb_documents" }

type examplePostRow struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"index"`
	Platform    string
	ContentMD   string
	IsActive    bool
	CreatedAt   time.Time
}

func (examplePostRow) TableName() string { return "example_posts" }

type draftRow struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"index"`
	Platform    string
	RunID       *string
	ContentText string
	Variants    []models.Variant `gorm:"serializer:json"`
	Hashtags    []string         `gorm:"serializer:json"`
	SourceIDs   []string         `gorm:"serializer:json"`
	FunnelStage *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (draftRow) TableName() string { return "drafts" }

type publishedPostRow struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"index"`
	DraftID     *string
	Platform    string
	FunnelStage *string
	PublishedAt time.Time
}

func (publishedPostRow) TableName() string { return "published_posts" }

type imageRow struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string
	DraftID     string `gorm:"index"`
	Prompt      string
	Model       string
	StoragePath string
	AspectRatio string
	Style       string
	CreatedAt   time.Time
}

func (imageRow) TableName() string { return "images" }

// SQLiteStore is an embedded gorm/SQLite implementation of Repository for local development.
type SQLiteStore struct {
	db     *gorm.DB
	logger *logging.Logger
}

// OpenSQLite opens (or creates) the database file at path and migrates the schema.
func OpenSQLite(path string, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables.
func (s *SQLiteStore) Migrate() error {
	return s.db.AutoMigrate(&sourceRow{}, &documentRow{}, &examplePostRow{}, &draftRow{}, &publishedPostRow{}, &imageRow{})
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func optional(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// --- sources ---

func (r sourceRow) model() models.Source {
	return models.Source{
		ID: r.ID, WorkspaceID: r.WorkspaceID, Type: models.SourceType(r.Type), URL: r.URL, Title: r.Title,
		Author: r.Author, PublishedAt: r.PublishedAt, ThumbnailURL: r.ThumbnailURL, RawText: r.RawText,
		CleanedText: r.CleanedText, Summary: r.Summary, KeyPoints: r.KeyPoints, Status: models.SourceStatus(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *SQLiteStore) ListSources(ctx context.Context, q SourceQuery) ([]models.Source, error) {
	tx := s.db.WithContext(ctx).Where("workspace_id = ?", q.WorkspaceID)
	if len(q.IDs) > 0 {
		tx = tx.Where("id IN ?", q.IDs)
	} else {
		if q.Status != "" {
			tx = tx.Where("status = ?", string(q.Status))
		}
		limit := q.Limit
		if limit <= 0 {
			limit = 5
		}
		tx = tx.Limit(limit)
	}

	var rows []sourceRow
	if err := tx.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Source, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src *models.Source) error {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	if src.Status == "" {
		src.Status = models.SourceStatusNew
	}
	row := sourceRow{
		ID: src.ID, WorkspaceID: src.WorkspaceID, Type: string(src.Type), URL: src.URL, Title: src.Title,
		Author: src.Author, PublishedAt: src.PublishedAt, ThumbnailURL: src.ThumbnailURL, RawText: src.RawText,
		CleanedText: src.CleanedText, Summary: src.Summary, KeyPoints: nonNil(src.KeyPoints), Status: string(src.Status),
		CreatedAt: src.CreatedAt, UpdatedAt: src.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// --- knowledge base ---

func (s *SQLiteStore) ActiveDocuments(ctx context.Context, workspaceID string, keys ...string) ([]models.ContextDocument, error) {
	tx := s.db.WithContext(ctx).Where("workspace_id = ? AND is_active = ?", workspaceID, true)
	if len(keys) > 0 {
		tx = tx.Where("key IN ?", keys)
	}
	var rows []documentRow
	if err := tx.Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]models.ContextDocument, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, models.ContextDocument{
			ID: r.ID, WorkspaceID: r.WorkspaceID, Key: r.Key, Title: r.Title, ContentMD: r.ContentMD,
			IsActive: r.IsActive, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
	return docs, nil
}

func (s *SQLiteStore) ActiveExamplePosts(ctx context.Context, workspaceID string, platform models.Platform, limit int) ([]models.ExamplePost, error) {
	var rows []examplePostRow
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND platform = ? AND is_active = ?", workspaceID, string(platform), true).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	posts := make([]models.ExamplePost, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, models.ExamplePost{
			ID: r.ID, WorkspaceID: r.WorkspaceID, Platform: models.Platform(r.Platform), ContentMD: r.ContentMD,
			IsActive: r.IsActive, CreatedAt: r.CreatedAt,
		})
	}
	return posts, nil
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *models.ContextDocument) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	var existing documentRow
	err := s.db.WithContext(ctx).Where("workspace_id = ? AND key = ?", doc.WorkspaceID, doc.Key).First(&existing).Error
	if err == nil {
		doc.ID = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := documentRow{
		ID: doc.ID, WorkspaceID: doc.WorkspaceID, Key: doc.Key, Title: doc.Title, ContentMD: doc.ContentMD,
		IsActive: doc.IsActive, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content_md", "is_active", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLiteStore) CreateExamplePost(ctx context.Context, post *models.ExamplePost) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	row := examplePostRow{
		ID: post.ID, WorkspaceID: post.WorkspaceID, Platform: string(post.Platform), ContentMD: post.ContentMD,
		IsActive: post.IsActive, CreatedAt: post.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// --- drafts ---

func (r draftRow) model() *models.Draft {
	return &models.Draft{
		ID: r.ID, WorkspaceID: r.WorkspaceID, Platform: models.Platform(r.Platform), RunID: optional(r.RunID),
		ContentText: r.ContentText, Variants: r.Variants, Hashtags: r.Hashtags, SourceIDs: r.SourceIDs,
		FunnelStage: models.FunnelStage(optional(r.FunnelStage)), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *SQLiteStore) CreateDraft(ctx context.Context, d *models.Draft) error {
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
	row := draftRow{
		ID: d.ID, WorkspaceID: d.WorkspaceID, Platform: string(d.Platform), RunID: nullIfEmpty(d.RunID),
		ContentText: d.ContentText, Variants: variants, Hashtags: nonNil(d.Hashtags), SourceIDs: nonNil(d.SourceIDs),
		FunnelStage: nullIfEmpty(string(d.FunnelStage)), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SQLiteStore) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	var row draftRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, gormNotFound(err)
	}
	return row.model(), nil
}

func (s *SQLiteStore) updateDraft(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&draftRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateDraftContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	return s.updateDraft(ctx, id, map[string]any{"content_text": content, "updated_at": updatedAt})
}

func (s *SQLiteStore) UpdateDraftFunnelStage(ctx context.Context, id string, stage models.FunnelStage) error {
	return s.updateDraft(ctx, id, map[string]any{"funnel_stage": string(stage), "updated_at": time.Now().UTC()})
}

func (s *SQLiteStore) ListUnclassifiedDrafts(ctx context.Context, workspaceID string, limit int) ([]models.Draft, error) {
	var rows []draftRow
	err := s.db.WithContext(ctx).Where("workspace_id = ? AND funnel_stage IS NULL", workspaceID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	drafts := make([]models.Draft, 0, len(rows))
	for _, r := range rows {
		drafts = append(drafts, *r.model())
	}
	return drafts, nil
}

func (s *SQLiteStore) FunnelEntries(ctx context.Context, workspaceID string, since *time.Time) ([]models.FunnelEntry, error) {
	var drafts []draftRow
	tx := s.db.WithContext(ctx).Select("platform", "funnel_stage").Where("workspace_id = ?", workspaceID)
	if since != nil {
		tx = tx.Where("created_at >= ?", *since)
	}
	if err := tx.Find(&drafts).Error; err != nil {
		return nil, err
	}

	var published []publishedPostRow
	tx = s.db.WithContext(ctx).Select("platform", "funnel_stage").Where("workspace_id = ?", workspaceID)
	if since != nil {
		tx = tx.Where("published_at >= ?", *since)
	}
	if err := tx.Find(&published).Error; err != nil {
		return nil, err
	}

	entries := make([]models.FunnelEntry, 0, len(drafts)+len(published))
	for _, d := range drafts {
		entries = append(entries, models.FunnelEntry{Platform: models.Platform(d.Platform), FunnelStage: models.FunnelStage(optional(d.FunnelStage))})
	}
	for _, p := range published {
		entries = append(entries, models.FunnelEntry{Platform: models.Platform(p.Platform), FunnelStage: models.FunnelStage(optional(p.FunnelStage))})
	}
	return entries, nil
}

func (s *SQLiteStore) CreatePublishedPost(ctx context.Context, p *models.PublishedPost) error {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	row := publishedPostRow{
		ID: p.ID, WorkspaceID: p.WorkspaceID, DraftID: nullIfEmpty(p.DraftID), Platform: string(p.Platform),
		FunnelStage: nullIfEmpty(string(p.FunnelStage)), PublishedAt: p.PublishedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// --- images ---

func (r imageRow) model() *models.Image {
	return &models.Image{
		ID: r.ID, WorkspaceID: r.WorkspaceID, DraftID: r.DraftID, Prompt: r.Prompt, Model: r.Model,
		StoragePath: r.StoragePath, AspectRatio: models.AspectRatio(r.AspectRatio), Style: models.ImageStyle(r.Style),
		CreatedAt: r.CreatedAt,
	}
}

func (s *SQLiteStore) CreateImage(ctx context.Context, img *models.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	row := imageRow{
		ID: img.ID, WorkspaceID: img.WorkspaceID, DraftID: img.DraftID, Prompt: img.Prompt, Model: img.Model,
		StoragePath: img.StoragePath, AspectRatio: string(img.AspectRatio), Style: string(img.Style), CreatedAt: img.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SQLiteStore) GetImage(ctx context.Context, id string) (*models.Image, error) {
	var row imageRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, gormNotFound(err)
	}
	return row.model(), nil
}

func (s *SQLiteStore) ListImagesByDraft(ctx context.Context, draftID string) ([]models.Image, error) {
	var rows []imageRow
	if err := s.db.WithContext(ctx).Where("draft_id = ?", draftID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	images := make([]models.Image, 0, len(rows))
	for _, r := range rows {
		images = append(images, *r.model())
	}
	return images, nil
}
