package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"contenthub/backend/internal/services"
	"contenthub/backend/pkg/models"
)

// GenerateImageRequest is the body of POST /api/images/generate.
type GenerateImageRequest struct {
	DraftID      string             `json:"draft_id"`
	AspectRatio  models.AspectRatio `json:"aspect_ratio"`
	Style        models.ImageStyle  `json:"style"`
	CustomPrompt string             `json:"custom_prompt"`
	IncludeLogo  *bool              `json:"include_logo"`
}

// GenerateBatchRequest is the body of POST /api/images/generate-batch.
type GenerateBatchRequest struct {
	DraftID     string              `json:"draft_id"`
	Count       int                 `json:"count"`
	Styles      []models.ImageStyle `json:"styles"`
	AspectRatio models.AspectRatio  `json:"aspect_ratio"`
	IncludeLogo *bool               `json:"include_logo"`
}

// StylesResponse lists the renderable styles.
type StylesResponse struct {
	Styles []models.StyleInfo `json:"styles"`
}

func includeLogo(v *bool) bool { return v == nil || *v }

// GenerateImage renders one image for a draft
// (POST /api/images/generate)
func (h *Handler) GenerateImage(c echo.Context) error {
	var req GenerateImageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	result, err := h.images.GenerateImage(c.Request().Context(), services.GenerateImageRequest{
		DraftID:      req.DraftID,
		AspectRatio:  req.AspectRatio,
		Style:        req.Style,
		CustomPrompt: req.CustomPrompt,
		IncludeLogo:  includeLogo(req.IncludeLogo),
	})
	if err != nil {
		return h.failWith(c, err, "Image generation failed")
	}
	return ok(c, *result, "Image generated successfully")
}

// GenerateBatch renders up to four images concurrently
// (POST /api/images/generate-batch)
func (h *Handler) GenerateBatch(c echo.Context) error {
	var req GenerateBatchRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	if req.Count < 0 || req.Count > 4 {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be between 1 and 4")
	}
	for _, s := range req.Styles {
		if !s.Synthesized() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown image style %q", s))
		}
	}
	result, err := h.images.GenerateBatch(c.Request().Context(), services.BatchRequest{
		DraftID:     req.DraftID,
		Count:       req.Count,
		Styles:      req.Styles,
		AspectRatio: req.AspectRatio,
		IncludeLogo: includeLogo(req.IncludeLogo),
	})
	if err != nil {
		return h.failWith(c, err, "Batch image generation failed")
	}
	return ok(c, *result, fmt.Sprintf("Generated %d images", len(result.Images)))
}

// RegenerateImage renders a fresh copy of an image
// (POST /api/images/regenerate/:id)
func (h *Handler) RegenerateImage(c echo.Context) error {
	result, err := h.images.RegenerateImage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.failWith(c, err, "Image regeneration failed")
	}
	return ok(c, *result, "Image regenerated successfully")
}

// ListStyles returns the style catalogue
// (GET /api/images/styles)
func (h *Handler) ListStyles(c echo.Context) error {
	return ok(c, StylesResponse{Styles: models.StyleCatalogue()}, "")
}

// ListDraftImages returns a draft's images, shared links included
// (GET /api/images/drafts/:draft_id)
func (h *Handler) ListDraftImages(c echo.Context) error {
	images, err := h.images.ListDraftImages(c.Request().Context(), c.Param("draft_id"))
	if err != nil {
		return h.failWith(c, err, "Failed to list images")
	}
	return ok(c, images, fmt.Sprintf("%d images", len(images)))
}
