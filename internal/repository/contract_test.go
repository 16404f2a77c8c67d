package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/backend/pkg/models"
)

// exerciseRepository runs the behaviour every Repository implementation must share.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	ws := "ws-" + uuid.NewString()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, repo.Ping(ctx))
	})

	t.Run("Sources newest enriched first", func(t *testing.T) {
		for i, status := range []models.SourceStatus{
			models.SourceStatusEnriched, models.SourceStatusNew, models.SourceStatusEnriched,
			models.SourceStatusEnriched, models.SourceStatusEnriched, models.SourceStatusEnriched,
			models.SourceStatusEnriched,
		} {
			src := &models.Source{
				ID:          uuid.NewString(),
				WorkspaceID: ws,
				Type:        models.SourceTypeBlogURL,
				Title:       "source",
				Summary:     "summary",
				KeyPoints:   []string{"a", "b"},
				Status:      status,
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, repo.CreateSource(ctx, src))
		}

		got, err := repo.ListSources(ctx, SourceQuery{WorkspaceID: ws, Status: models.SourceStatusEnriched, Limit: 5})
		require.NoError(t, err)
		require.Len(t, got, 5)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
			assert.Equal(t, models.SourceStatusEnriched, got[i].Status)
		}
		assert.Equal(t, []string{"a", "b"}, got[0].KeyPoints)

		byID, err := repo.ListSources(ctx, SourceQuery{WorkspaceID: ws, IDs: []string{got[0].ID, got[4].ID, "missing"}})
		require.NoError(t, err)
		assert.Len(t, byID, 2)

		other, err := repo.ListSources(ctx, SourceQuery{WorkspaceID: "other", IDs: []string{got[0].ID}})
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("Knowledge base", func(t *testing.T) {
		doc := &models.ContextDocument{ID: uuid.NewString(), WorkspaceID: ws, Key: models.DocToneOfVoice, ContentMD: "v1", IsActive: true}
		require.NoError(t, repo.UpsertDocument(ctx, doc))
		again := &models.ContextDocument{ID: uuid.NewString(), WorkspaceID: ws, Key: models.DocToneOfVoice, ContentMD: "v2", IsActive: true}
		require.NoError(t, repo.UpsertDocument(ctx, again))
		require.NoError(t, repo.UpsertDocument(ctx, &models.ContextDocument{ID: uuid.NewString(), WorkspaceID: ws, Key: "linkedin_algorithm", ContentMD: "algo", IsActive: true}))
		require.NoError(t, repo.UpsertDocument(ctx, &models.ContextDocument{ID: uuid.NewString(), WorkspaceID: ws, Key: models.DocBrandGuidelines, ContentMD: "off", IsActive: false}))

		docs, err := repo.ActiveDocuments(ctx, ws, models.DocToneOfVoice, models.DocBrandGuidelines)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "v2", docs[0].ContentMD)

		all, err := repo.ActiveDocuments(ctx, ws)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		for i := 0; i < 4; i++ {
			require.NoError(t, repo.CreateExamplePost(ctx, &models.ExamplePost{
				ID: uuid.NewString(), WorkspaceID: ws, Platform: models.PlatformLinkedIn, ContentMD: "post", IsActive: true,
			}))
		}
		require.NoError(t, repo.CreateExamplePost(ctx, &models.ExamplePost{
			ID: uuid.NewString(), WorkspaceID: ws, Platform: models.PlatformX, ContentMD: "x post", IsActive: true,
		}))
		posts, err := repo.ActiveExamplePosts(ctx, ws, models.PlatformLinkedIn, 3)
		require.NoError(t, err)
		assert.Len(t, posts, 3)
	})

	var draftID string
	t.Run("Drafts", func(t *testing.T) {
		d := &models.Draft{
			ID:          uuid.NewString(),
			WorkspaceID: ws,
			Platform:    models.PlatformLinkedIn,
			RunID:       "run-1",
			ContentText: "first",
			Variants:    []models.Variant{{Label: "Safe", Content: "first"}, {Label: "Concise", Content: "short"}},
			Hashtags:    []string{"go"},
			SourceIDs:   []string{"s1"},
			FunnelStage: models.FunnelMOFU,
		}
		require.NoError(t, repo.CreateDraft(ctx, d))
		draftID = d.ID

		got, err := repo.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.Variants, got.Variants)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, models.FunnelMOFU, got.FunnelStage)

		later := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
		require.NoError(t, repo.UpdateDraftContent(ctx, d.ID, "second", later))
		got, err = repo.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.ContentText)
		assert.True(t, got.UpdatedAt.Equal(later))

		_, err = repo.GetDraft(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.UpdateDraftContent(ctx, "missing", "x", later), ErrNotFound)

		bare := &models.Draft{ID: uuid.NewString(), WorkspaceID: ws, Platform: models.PlatformX, ContentText: "x"}
		require.NoError(t, repo.CreateDraft(ctx, bare))
		got, err = repo.GetDraft(ctx, bare.ID)
		require.NoError(t, err)
		assert.Empty(t, got.FunnelStage)
		assert.Empty(t, got.RunID)

		unclassified, err := repo.ListUnclassifiedDrafts(ctx, ws, 50)
		require.NoError(t, err)
		require.Len(t, unclassified, 1)
		assert.Equal(t, bare.ID, unclassified[0].ID)

		require.NoError(t, repo.UpdateDraftFunnelStage(ctx, bare.ID, models.FunnelBOFU))
		unclassified, err = repo.ListUnclassifiedDrafts(ctx, ws, 50)
		require.NoError(t, err)
		assert.Empty(t, unclassified)

		require.NoError(t, repo.CreatePublishedPost(ctx, &models.PublishedPost{
			ID: uuid.NewString(), WorkspaceID: ws, Platform: models.PlatformLinkedIn, FunnelStage: models.FunnelTOFU,
		}))
		require.NoError(t, repo.CreatePublishedPost(ctx, &models.PublishedPost{
			ID: uuid.NewString(), WorkspaceID: ws, Platform: models.PlatformX,
			PublishedAt: time.Now().UTC().AddDate(0, 0, -60),
		}))

		all, err := repo.FunnelEntries(ctx, ws, nil)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		since := time.Now().UTC().AddDate(0, 0, -30)
		recent, err := repo.FunnelEntries(ctx, ws, &since)
		require.NoError(t, err)
		assert.Len(t, recent, 3)
	})

	t.Run("Images", func(t *testing.T) {
		require.NotEmpty(t, draftID)
		first := &models.Image{
			ID: uuid.NewString(), WorkspaceID: ws, DraftID: draftID, Prompt: "p", Model: "m",
			StoragePath: "images/ws/a.png", AspectRatio: "16:9", Style: models.StyleFlow,
			CreatedAt: time.Now().UTC().Add(-time.Second),
		}
		require.NoError(t, repo.CreateImage(ctx, first))
		shared := *first
		shared.ID = uuid.NewString()
		shared.CreatedAt = time.Now().UTC()
		require.NoError(t, repo.CreateImage(ctx, &shared))

		got, err := repo.GetImage(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AspectRatio("16:9"), got.AspectRatio)
		assert.Equal(t, models.StyleFlow, got.Style)

		list, err := repo.ListImagesByDraft(ctx, draftID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, list[0].StoragePath, list[1].StoragePath)

		_, err = repo.GetImage(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
