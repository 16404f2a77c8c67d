package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"contenthub/backend/internal/services"
)

// ClassifyRequest is the body of POST /api/strategy/classify.
type ClassifyRequest struct {
	WorkspaceID string `json:"workspace_id"`
	DraftID     string `json:"draft_id"`
}

// WorkspaceRequest carries a workspace and an optional time period.
type WorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
	TimePeriod  string `json:"time_period"`
}

func validPeriod(period string) error {
	if period != "" && !services.ValidPeriod(period) {
		return echo.NewHTTPError(http.StatusBadRequest, "time_period must be one of 7d, 30d, 90d, all")
	}
	return nil
}

// Classify assigns a funnel stage to one draft
// (POST /api/strategy/classify)
func (h *Handler) Classify(c echo.Context) error {
	var req ClassifyRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	result, err := h.strategy.ClassifyPost(c.Request().Context(), req.DraftID)
	if err != nil {
		return h.failWith(c, err, "Classification failed")
	}
	return ok(c, *result, fmt.Sprintf("Post classified as %s", result.FunnelStage))
}

// ClassifyBatch classifies the untagged drafts of a workspace
// (POST /api/strategy/classify-batch)
func (h *Handler) ClassifyBatch(c echo.Context) error {
	var req WorkspaceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("workspace_id", req.WorkspaceID); err != nil {
		return err
	}
	result, err := h.strategy.ClassifyBatch(c.Request().Context(), req.WorkspaceID)
	if err != nil {
		return h.failWith(c, err, "Batch classification failed")
	}
	return ok(c, *result, fmt.Sprintf("Classified %d posts", result.Classified))
}

// Distribution counts posts per funnel stage
// (GET /api/strategy/distribution?workspace_id=&time_period=)
func (h *Handler) Distribution(c echo.Context) error {
	workspaceID := c.QueryParam("workspace_id")
	if err := required("workspace_id", workspaceID); err != nil {
		return err
	}
	period := c.QueryParam("time_period")
	if err := validPeriod(period); err != nil {
		return err
	}
	result, err := h.strategy.Distribution(c.Request().Context(), workspaceID, period)
	if err != nil {
		return h.failWith(c, err, "Failed to get distribution")
	}
	return ok(c, *result, "Distribution retrieved")
}

// Recommend asks for a rebalanced content plan
// (POST /api/strategy/recommend)
func (h *Handler) Recommend(c echo.Context) error {
	var req WorkspaceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := required("workspace_id", req.WorkspaceID); err != nil {
		return err
	}
	if err := validPeriod(req.TimePeriod); err != nil {
		return err
	}
	result, err := h.strategy.Recommend(c.Request().Context(), req.WorkspaceID, req.TimePeriod)
	if err != nil {
		return h.failWith(c, err, "Recommendation failed")
	}
	return ok(c, *result, "Strategy recommendations generated")
}
