// Package api contains the HTTP handlers for the content service
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/services"
	"contenthub/backend/pkg/models"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// Generator drafts and rewrites posts.
type Generator interface {
	Generate(ctx context.Context, req services.GenerateRequest) (*models.GenerationResult, error)
	GenerateMulti(ctx context.Context, req services.GenerateMultiRequest) (*models.MultiGenerationResult, error)
	Regenerate(ctx context.Context, req services.RegenerateRequest) (*models.RegenerateResult, error)
}

// Illustrator renders and lists draft images.
type Illustrator interface {
	GenerateImage(ctx context.Context, req services.GenerateImageRequest) (*models.ImageResult, error)
	GenerateBatch(ctx context.Context, req services.BatchRequest) (*models.BatchImageResult, error)
	RegenerateImage(ctx context.Context, imageID string) (*models.ImageResult, error)
	ListDraftImages(ctx context.Context, draftID string) ([]models.ImageResult, error)
}

// Strategist classifies drafts and recommends a content mix.
type Strategist interface {
	ClassifyPost(ctx context.Context, draftID string) (*models.Classification, error)
	ClassifyBatch(ctx context.Context, workspaceID string) (*models.BatchClassification, error)
	Distribution(ctx context.Context, workspaceID, period string) (*models.FunnelDistribution, error)
	Recommend(ctx context.Context, workspaceID, period string) (*models.StrategyRecommendation, error)
}

// Pinger reports store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers for the content REST API
type Handler struct {
	gen      Generator
	images   Illustrator
	strategy Strategist
	store    Pinger
	logger   *logging.Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(gen Generator, images Illustrator, strategy Strategist, store Pinger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{gen: gen, images: images, strategy: strategy, store: store, logger: logger}
}

// RegisterHealth mounts the unauthenticated health checks.
func (h *Handler) RegisterHealth(e *echo.Echo) {
	e.GET("/health", h.HandleHealth)
	e.GET("/health/ready", h.HandleReady)
}

// Register mounts the API routes on g. Authentication is applied by the caller.
func (h *Handler) Register(g *echo.Group) {
	gen := g.Group("/generation")
	gen.POST("/generate", h.Generate)
	gen.POST("/generate-multi", h.GenerateMulti)
	gen.POST("/regenerate", h.Regenerate)

	img := g.Group("/images")
	img.POST("/generate", h.GenerateImage)
	img.POST("/generate-batch", h.GenerateBatch)
	img.POST("/regenerate/:id", h.RegenerateImage)
	img.GET("/styles", h.ListStyles)
	img.GET("/drafts/:draft_id", h.ListDraftImages)

	st := g.Group("/strategy")
	st.POST("/classify", h.Classify)
	st.POST("/classify-batch", h.ClassifyBatch)
	st.GET("/distribution", h.Distribution)
	st.POST("/recommend", h.Recommend)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "contenthub",
		Version:   Version,
	})
}

// HandleReady reports 503 until the store answers a ping.
func (h *Handler) HandleReady(c echo.Context) error {
	status := HealthStatus{Status: "ready", Timestamp: time.Now().UTC(), Service: "contenthub", Version: Version}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			status.Status = "unavailable"
			return c.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return c.JSON(http.StatusOK, status)
}

// failWith logs err and writes the mapped status. fallback is shown for unexpected errors.
func (h *Handler) failWith(c echo.Context, err error, fallback string) error {
	status, message := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback, "path", c.Path(), "error", err)
	} else {
		h.logger.Info("request rejected", "path", c.Path(), "status", status, "error", err)
	}
	return fail(c, status, message)
}

// bindJSON decodes the body; the returned error is rendered by ErrorHandler.
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, field+" is required")
	}
	return nil
}
