package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"contenthub/backend/internal/config"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/repository"
	"contenthub/backend/pkg/models"
)

//go:embed example.yaml
var exampleSeed []byte

const sourceTitleLen = 80

// Seed is the YAML layout accepted by the seed command.
type Seed struct {
	WorkspaceID string `yaml:"workspace_id"`
	Documents   []struct {
		Key     string `yaml:"key"`
		Title   string `yaml:"title"`
		Content string `yaml:"content"`
	} `yaml:"documents"`
	Examples []struct {
		Platform models.Platform `yaml:"platform"`
		Content  string          `yaml:"content"`
	} `yaml:"examples"`
	Sources []struct {
		// Input is a URL or free text; its type is detected.
		Input     string   `yaml:"input"`
		Title     string   `yaml:"title"`
		Text      string   `yaml:"text"`
		Summary   string   `yaml:"summary"`
		KeyPoints []string `yaml:"key_points"`
	} `yaml:"sources"`
	Published []struct {
		Platform    models.Platform    `yaml:"platform"`
		FunnelStage models.FunnelStage `yaml:"funnel_stage"`
		DaysAgo     int                `yaml:"days_ago"`
	} `yaml:"published"`
}

func main() {
	var envFile, file, workspace string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Seed a workspace with context documents, example posts and sources",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(envFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := logging.NewLogger(cfg.Log.Level, true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			seed, err := readSeed(file)
			if err != nil {
				return err
			}
			if workspace != "" {
				seed.WorkspaceID = workspace
			}
			if seed.WorkspaceID == "" {
				return fmt.Errorf("workspace_id is required")
			}

			store, err := repository.Open(cmd.Context(), repository.OpenOptions{
				Driver:     cfg.DB.Driver,
				URL:        cfg.DatabaseURL(),
				SQLitePath: cfg.DB.SQLitePath,
				Migrate:    true,
			}, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return run(cmd.Context(), store, seed, logger, time.Now().UTC())
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed YAML file (defaults to the bundled example)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Override the workspace id from the file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readSeed(path string) (*Seed, error) {
	data := exampleSeed
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &seed, nil
}

// seedStore is the part of the repository the seed command writes to.
type seedStore interface {
	repository.SourceRepository
	repository.KnowledgeRepository
	CreatePublishedPost(ctx context.Context, p *models.PublishedPost) error
}

// run writes the seed. Documents are upserted by key; sources and example posts already
// present are skipped; published posts get stable ids so reruns do not duplicate them.
func run(ctx context.Context, store seedStore, seed *Seed, logger *logging.Logger, now time.Time) error {
	ws := seed.WorkspaceID
	logger = logger.With("workspace_id", ws)

	for _, d := range seed.Documents {
		doc := &models.ContextDocument{
			ID:          stableID(ws, "document", d.Key),
			WorkspaceID: ws,
			Key:         d.Key,
			Title:       d.Title,
			ContentMD:   strings.TrimSpace(d.Content),
			IsActive:    true,
		}
		if err := store.UpsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.Key, err)
		}
		logger.Info("Seeded document", "key", d.Key)
	}

	for _, ex := range seed.Examples {
		if !ex.Platform.Valid() {
			logger.Warn("Skipping example post with unknown platform", "platform", ex.Platform)
			continue
		}
		content := strings.TrimSpace(ex.Content)
		existing, err := store.ActiveExamplePosts(ctx, ws, ex.Platform, 100)
		if err != nil {
			return fmt.Errorf("list example posts: %w", err)
		}
		if containsExample(existing, content) {
			logger.Info("Skipping existing example post", "platform", ex.Platform)
			continue
		}
		post := &models.ExamplePost{
			ID:          uuid.New().String(),
			WorkspaceID: ws,
			Platform:    ex.Platform,
			ContentMD:   content,
			IsActive:    true,
		}
		if err := store.CreateExamplePost(ctx, post); err != nil {
			return fmt.Errorf("create example post: %w", err)
		}
		logger.Info("Seeded example post", "platform", ex.Platform, "id", post.ID)
	}

	existing, err := store.ListSources(ctx, repository.SourceQuery{WorkspaceID: ws, Limit: 500})
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	for _, s := range seed.Sources {
		src := buildSource(ws, s.Input, s.Title, s.Text, s.Summary, s.KeyPoints)
		if containsSource(existing, src) {
			logger.Info("Skipping existing source", "title", src.Title)
			continue
		}
		if err := store.CreateSource(ctx, src); err != nil {
			return fmt.Errorf("create source %q: %w", src.Title, err)
		}
		existing = append(existing, *src)
		logger.Info("Seeded source", "type", src.Type, "title", src.Title, "id", src.ID)
	}

	for i, p := range seed.Published {
		post := &models.PublishedPost{
			ID:          stableID(ws, "published", fmt.Sprint(i)),
			WorkspaceID: ws,
			Platform:    p.Platform,
			FunnelStage: p.FunnelStage,
			PublishedAt: now.AddDate(0, 0, -p.DaysAgo),
		}
		if err := store.CreatePublishedPost(ctx, post); err != nil {
			logger.Info("Skipping published post", "index", i, "error", err)
			continue
		}
		logger.Info("Seeded published post", "platform", p.Platform, "funnel_stage", p.FunnelStage)
	}

	logger.Info("Seeding complete!")
	return nil
}

func buildSource(ws, input, title, text, summary string, keyPoints []string) *models.Source {
	input = strings.TrimSpace(input)
	src := &models.Source{
		ID:          uuid.New().String(),
		WorkspaceID: ws,
		Type:        models.DetectSourceType(input),
		Title:       title,
		RawText:     strings.TrimSpace(text),
		Summary:     summary,
		KeyPoints:   keyPoints,
		Status:      models.SourceStatusNew,
	}
	if src.Type == models.SourceTypeNote {
		if src.RawText == "" {
			src.RawText = input
		}
	} else {
		src.URL = input
	}
	if src.Title == "" {
		src.Title = models.TruncateText(firstLine(src.RawText, input), sourceTitleLen)
	}
	src.CleanedText = src.RawText
	if summary != "" {
		src.Status = models.SourceStatusEnriched
	}
	return src
}

func firstLine(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, '\n'); i >= 0 {
			return strings.TrimSpace(v[:i])
		}
		return v
	}
	return ""
}

func containsSource(existing []models.Source, src *models.Source) bool {
	for _, e := range existing {
		if src.URL != "" && e.URL == src.URL {
			return true
		}
		if src.URL == "" && e.URL == "" && e.Title == src.Title {
			return true
		}
	}
	return false
}

func containsExample(existing []models.ExamplePost, content string) bool {
	for _, e := range existing {
		if strings.TrimSpace(e.ContentMD) == content {
			return true
		}
	}
	return false
}

func stableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("contenthub:"+strings.Join(parts, "/"))).String()
}
