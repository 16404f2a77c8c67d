// Package kb loads the workspace knowledge base that grounds every prompt:
// tone of voice, brand guidelines, platform algorithm notes and example posts.
package kb

import (
	"context"
	"strings"

	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/repository"
	"contenthub/backend/pkg/models"
)

// ExamplePostLimit caps how many example posts feed the writer.
const ExamplePostLimit = 3

const exampleSeparator = "\n\n---\n\n"

// Context is the resolved knowledge for one workspace and platform.
// Every field is empty when the matching document is absent.
type Context struct {
	ToneOfVoice        string
	BrandGuidelines    string
	PlatformGuidelines string
	ExamplePosts       string
}

// Loader reads context documents from the knowledge repository.
type Loader struct {
	repo   repository.KnowledgeRepository
	logger *logging.Logger
}

// NewLoader creates a Loader.
func NewLoader(repo repository.KnowledgeRepository, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{repo: repo, logger: logger}
}

// Load resolves the context for a platform. Repository failures degrade to empty values.
func (l *Loader) Load(ctx context.Context, workspaceID string, platform models.Platform) Context {
	algoKey := models.AlgorithmDocKey(platform)
	out := l.documents(ctx, workspaceID, models.DocToneOfVoice, models.DocBrandGuidelines, algoKey)

	posts, err := l.repo.ActiveExamplePosts(ctx, workspaceID, platform, ExamplePostLimit)
	if err != nil {
		l.logger.Warn("example posts unavailable", "workspace_id", workspaceID, "platform", platform, "error", err)
	}
	examples := make([]string, 0, len(posts))
	for _, p := range posts {
		examples = append(examples, p.ContentMD)
	}
	out.ExamplePosts = strings.Join(examples, exampleSeparator)
	return out
}

// BrandContext resolves only tone of voice and brand guidelines.
func (l *Loader) BrandContext(ctx context.Context, workspaceID string) Context {
	return l.documents(ctx, workspaceID, models.DocToneOfVoice, models.DocBrandGuidelines)
}

// BrandGuidelines returns the brand guidelines as plain text, or "" when none are configured.
func (l *Loader) BrandGuidelines(ctx context.Context, workspaceID string) string {
	docs, err := l.repo.ActiveDocuments(ctx, workspaceID, models.DocBrandGuidelines)
	if err != nil {
		l.logger.Debug("no brand guidelines", "workspace_id", workspaceID, "error", err)
		return ""
	}
	if len(docs) == 0 {
		return ""
	}
	return Flatten(docs[0].ContentMD)
}

func (l *Loader) documents(ctx context.Context, workspaceID string, keys ...string) Context {
	var out Context
	docs, err := l.repo.ActiveDocuments(ctx, workspaceID, keys...)
	if err != nil {
		l.logger.Warn("context documents unavailable", "workspace_id", workspaceID, "error", err)
		return out
	}
	for _, d := range docs {
		switch {
		case d.Key == models.DocToneOfVoice:
			out.ToneOfVoice = d.ContentMD
		case d.Key == models.DocBrandGuidelines:
			out.BrandGuidelines = d.ContentMD
		case strings.HasSuffix(d.Key, "_algorithm"):
			out.PlatformGuidelines = d.ContentMD
		}
	}
	return out
}
