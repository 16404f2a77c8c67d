package services

import (
	"context"

	"contenthub/backend/internal/repository"
	"contenthub/backend/pkg/models"
)

// GenerationStore is the slice of the row store the generation pipeline reads and writes.
type GenerationStore interface {
	repository.SourceRepository
	repository.DraftStore
}

// ImageStore is the slice of the row store the image orchestrator needs.
type ImageStore interface {
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	repository.ImageStore
}

// ImageProducer is what the generation pipeline asks of the image orchestrator.
// *ImageService implements it.
type ImageProducer interface {
	GenerateBatch(ctx context.Context, req BatchRequest) (*models.BatchImageResult, error)
	SaveSourceImages(ctx context.Context, workspaceID, draftID string, urls []string) []models.ImageResult
	LinkImages(ctx context.Context, workspaceID, draftID string, images []models.ImageResult) ([]models.ImageResult, error)
}
