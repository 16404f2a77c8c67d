package api

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"contenthub/backend/internal/services"
	"contenthub/backend/pkg/models"
)

// imageFields are the image options shared by both generate requests.
type imageFields struct {
	GenerateImages   *bool               `json:"generate_images"`
	ImageSource      string              `json:"image_source"`
	ImageStyles      []models.ImageStyle `json:"image_styles"`
	ImageAspectRatio models.AspectRatio  `json:"image_aspect_ratio"`
	SourceImageURLs  []string            `json:"source_image_urls"`
}

// options applies the request defaults: images on, generated, 1:1.
func (f imageFields) options() services.ImageOptions {
	opts := services.DefaultImageOptions()
	if f.GenerateImages != nil {
		opts.GenerateImages = *f.GenerateImages
	}
	if f.ImageSource != "" {
		opts.ImageSource = f.ImageSource
	}
	if f.ImageAspectRatio != "" {
		opts.AspectRatio = f.ImageAspectRatio
	}
	opts.Styles = f.ImageStyles
	opts.SourceImageURLs = f.SourceImageURLs
	return opts
}

// GenerateRequest is the body of POST /api/generation/generate.
type GenerateRequest struct {
	WorkspaceID string             `json:"workspace_id"`
	Platform    models.Platform    `json:"platform"`
	SourceIDs   []string           `json:"source_ids"`
	CustomText  string             `json:"custom_text"`
	Angle       string             `json:"angle"`
	FunnelStage models.FunnelStage `json:"funnel_stage"`
	imageFields
}

// GenerateMultiRequest is the body of POST /api/generation/generate-multi.
type GenerateMultiRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	Platforms   []models.Platform `json:"platforms"`
	SourceIDs   []string          `json:"source_ids"`
	CustomText  string            `json:"custom_text"`
	Angle       string            `json:"angle"`
	imageFields
}

// RegenerateRequest is the body of POST /api/generation/regenerate.
type RegenerateRequest struct {
	DraftID  string `json:"draft_id"`
	Action   string `json:"action"`
	Feedback string `json:"feedback"`
}

// Generate runs the single platform pipeline
// (POST /api/generation/generate)
func (h *Handler) Generate(c echo.Context) error {
	var req GenerateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("workspace_id", req.WorkspaceID); err != nil {
		return err
	}
	h.logger.Info("generating content", "workspace_id", req.WorkspaceID, "platform", req.Platform)

	result, err := h.gen.Generate(c.Request().Context(), services.GenerateRequest{
		WorkspaceID: req.WorkspaceID,
		Platform:    req.Platform,
		SourceIDs:   req.SourceIDs,
		CustomText:  req.CustomText,
		Angle:       req.Angle,
		FunnelStage: req.FunnelStage,
		Images:      req.options(),
	})
	if err != nil {
		return h.failWith(c, err, "Generation failed")
	}
	return ok(c, *result, fmt.Sprintf("Content generated successfully with %d images", len(result.Images)))
}

// GenerateMulti drafts several platforms that share one image set
// (POST /api/generation/generate-multi)
func (h *Handler) GenerateMulti(c echo.Context) error {
	var req GenerateMultiRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("workspace_id", req.WorkspaceID); err != nil {
		return err
	}
	h.logger.Info("generating multi-platform content", "workspace_id", req.WorkspaceID, "platforms", req.Platforms)

	result, err := h.gen.GenerateMulti(c.Request().Context(), services.GenerateMultiRequest{
		WorkspaceID: req.WorkspaceID,
		Platforms:   req.Platforms,
		SourceIDs:   req.SourceIDs,
		CustomText:  req.CustomText,
		Angle:       req.Angle,
		Images:      req.options(),
	})
	if err != nil {
		return h.failWith(c, err, "Generation failed")
	}
	names := make([]string, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		names = append(names, string(p))
	}
	return ok(c, *result, fmt.Sprintf("Generated %d drafts (%s) with %d shared images",
		len(result.Drafts), strings.Join(names, ", "), len(result.ImageIDs)))
}

// Regenerate applies a rewrite action to a draft
// (POST /api/generation/regenerate)
func (h *Handler) Regenerate(c echo.Context) error {
	var req RegenerateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	result, err := h.gen.Regenerate(c.Request().Context(), services.RegenerateRequest{
		DraftID:  req.DraftID,
		Action:   req.Action,
		Feedback: req.Feedback,
	})
	if err != nil {
		return h.failWith(c, err, "Regeneration failed")
	}
	return ok(c, *result, fmt.Sprintf("Regeneration (%s) completed", req.Action))
}
