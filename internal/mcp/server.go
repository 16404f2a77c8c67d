package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"contenthub/backend/internal/api"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/services"
	"contenthub/backend/pkg/models"
)

// Server exposes the content operations as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	gen       api.Generator
	images    api.Illustrator
	strategy  api.Strategist
	logger    *logging.Logger
}

func NewServer(gen api.Generator, images api.Illustrator, strategy api.Strategist, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ContentHub",
			api.Version,
			server.WithToolCapabilities(true),
		),
		gen:      gen,
		images:   images,
		strategy: strategy,
		logger:   logger.Named("mcp"),
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_draft",
			mcp.WithDescription("Generate a post draft for one platform from workspace sources or custom text"),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace owning the sources and drafts")),
			mcp.WithString("platform", mcp.Required(), mcp.Enum("linkedin", "x"), mcp.Description("Target platform")),
			mcp.WithArray("source_ids", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Sources to draw from, defaults to the most recent")),
			mcp.WithString("custom_text", mcp.Description("Free text used instead of stored sources")),
			mcp.WithString("angle", mcp.Description("Optional angle for the post")),
			mcp.WithString("funnel_stage", mcp.Enum("tofu", "mofu", "bofu"), mcp.Description("Overrides the planned funnel stage")),
			mcp.WithBoolean("generate_images", mcp.Description("Render images for the draft, default true")),
		),
		s.handleGenerateDraft,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_multi",
			mcp.WithDescription("Generate one draft per platform sharing a single image set"),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace owning the sources and drafts")),
			mcp.WithArray("platforms", mcp.Required(), mcp.Items(map[string]any{"type": "string", "enum": []string{"linkedin", "x"}})),
			mcp.WithArray("source_ids", mcp.Items(map[string]any{"type": "string"})),
			mcp.WithString("custom_text", mcp.Description("Free text used instead of stored sources")),
			mcp.WithString("angle", mcp.Description("Optional angle for the posts")),
			mcp.WithBoolean("generate_images", mcp.Description("Render the shared image set, default true")),
		),
		s.handleGenerateMulti,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"regenerate_draft",
			mcp.WithDescription("Rewrite an existing draft with a regeneration action"),
			mcp.WithString("draft_id", mcp.Required(), mcp.Description("The ID of the draft")),
			mcp.WithString("action", mcp.Required(), mcp.Enum(services.RegenerateActions()...)),
			mcp.WithString("feedback", mcp.Description("Instructions for the rewrite action")),
		),
		s.handleRegenerateDraft,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_images",
			mcp.WithDescription("Render up to four images for a draft, one per style"),
			mcp.WithString("draft_id", mcp.Required(), mcp.Description("The ID of the draft")),
			mcp.WithNumber("count", mcp.Description("Number of images, 1 to 4")),
			mcp.WithArray("styles", mcp.Items(map[string]any{"type": "string"})),
			mcp.WithString("aspect_ratio", mcp.Description("Aspect ratio such as 1:1 or 16:9")),
			mcp.WithBoolean("include_logo", mcp.Description("Apply the brand mark, default true")),
		),
		s.handleGenerateImages,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"classify_draft",
			mcp.WithDescription("Classify a draft into a marketing funnel stage"),
			mcp.WithString("draft_id", mcp.Required(), mcp.Description("The ID of the draft")),
		),
		s.handleClassifyDraft,
	)
}

func (s *Server) handleGenerateDraft(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := request.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: workspace_id"), nil
	}
	platform, err := request.RequireString("platform")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: platform"), nil
	}

	opts := services.DefaultImageOptions()
	opts.GenerateImages = request.GetBool("generate_images", true)

	result, err := s.gen.Generate(ctx, services.GenerateRequest{
		WorkspaceID: workspaceID,
		Platform:    models.Platform(platform),
		SourceIDs:   request.GetStringSlice("source_ids", nil),
		CustomText:  request.GetString("custom_text", ""),
		Angle:       request.GetString("angle", ""),
		FunnelStage: models.FunnelStage(request.GetString("funnel_stage", "")),
		Images:      opts,
	})
	if err != nil {
		return s.toolError("generate draft", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleGenerateMulti(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := request.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: workspace_id"), nil
	}
	names := request.GetStringSlice("platforms", nil)
	if len(names) == 0 {
		return mcp.NewToolResultError("Missing required parameter: platforms"), nil
	}
	platforms := make([]models.Platform, len(names))
	for i, n := range names {
		platforms[i] = models.Platform(n)
	}

	opts := services.DefaultImageOptions()
	opts.GenerateImages = request.GetBool("generate_images", true)

	result, err := s.gen.GenerateMulti(ctx, services.GenerateMultiRequest{
		WorkspaceID: workspaceID,
		Platforms:   platforms,
		SourceIDs:   request.GetStringSlice("source_ids", nil),
		CustomText:  request.GetString("custom_text", ""),
		Angle:       request.GetString("angle", ""),
		Images:      opts,
	})
	if err != nil {
		return s.toolError("generate drafts", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleRegenerateDraft(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draftID, err := request.RequireString("draft_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: draft_id"), nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: action"), nil
	}

	result, err := s.gen.Regenerate(ctx, services.RegenerateRequest{
		DraftID:  draftID,
		Action:   action,
		Feedback: request.GetString("feedback", ""),
	})
	if err != nil {
		return s.toolError("regenerate draft", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleGenerateImages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draftID, err := request.RequireString("draft_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: draft_id"), nil
	}

	names := request.GetStringSlice("styles", nil)
	styles := make([]models.ImageStyle, len(names))
	for i, n := range names {
		styles[i] = models.ImageStyle(n)
	}

	result, err := s.images.GenerateBatch(ctx, services.BatchRequest{
		DraftID:     draftID,
		Count:       request.GetInt("count", 0),
		Styles:      styles,
		AspectRatio: models.AspectRatio(request.GetString("aspect_ratio", "")),
		IncludeLogo: request.GetBool("include_logo", true),
	})
	if err != nil {
		return s.toolError("generate images", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleClassifyDraft(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draftID, err := request.RequireString("draft_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: draft_id"), nil
	}

	result, err := s.strategy.ClassifyPost(ctx, draftID)
	if err != nil {
		return s.toolError("classify draft", err), nil
	}
	return jsonResult(result)
}

// toolError reports caller mistakes verbatim and hides internal failures.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, services.ErrInvalidArgument),
		errors.Is(err, services.ErrNoSources),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrServiceNotConfigured):
		s.logger.Info("tool call rejected", "op", op, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", op, err))
	default:
		s.logger.Error("tool call failed", "op", op, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s", op))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers serves the SSE transport under /mcp, every route passing through wrap.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(h http.Handler) http.Handler { return h }
	}
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.Handle("/mcp", wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})))

	// SSE endpoints
	mux.Handle("/mcp/sse", wrap(sseServer))
	mux.Handle("/mcp/message", wrap(sseServer))
}
