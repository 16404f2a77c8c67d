package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"contenthub/backend/internal/api"
	"contenthub/backend/internal/auth"
	"contenthub/backend/internal/config"
	"contenthub/backend/internal/imagegen"
	"contenthub/backend/internal/kb"
	"contenthub/backend/internal/llm"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/mcp"
	"contenthub/backend/internal/prompts"
	"contenthub/backend/internal/repository"
	"contenthub/backend/internal/services"
	"contenthub/backend/internal/storage"
	"contenthub/backend/internal/tls"
)

const localFilesPrefix = "/files"

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting ContentHub service", "version", api.Version)

	store, err := openStore(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return err
	}
	defer store.Close()
	logger.Info("Database connected", "driver", cfg.DB.Driver)

	gen, images, strategy, err := buildServices(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, logger.Named("auth"))
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	e := newEcho(cfg, logger)

	handler := api.NewHandler(gen, images, strategy, store, logger.Named("api"))
	handler.RegisterHealth(e)
	apiGroup := e.Group("/api")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	handler.Register(apiGroup)
	logger.Info("REST API handlers mounted")

	if strings.EqualFold(cfg.Storage.Driver, "local") {
		e.Static(localFilesPrefix, cfg.Storage.LocalDir)
	}

	mcpServer := mcp.NewServer(gen, images, strategy, logger)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer(), authz.RequireAuth)
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec (with runtime substitution) and Swagger UI
	e.GET("/openapi.yaml", api.SpecHandler(cfg.Auth.Issuer))
	e.GET("/docs", api.SwaggerHandler())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- fmt.Errorf("prepare tls certificate: %w", err)
				return
			}
			if created {
				logger.Warn("generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// buildServices wires the model gateways, storage and the three domain services.
// Missing credentials leave the affected capability unconfigured instead of failing startup.
func buildServices(ctx context.Context, cfg *config.Config, store repository.Repository, logger *logging.Logger) (*services.GenerationService, *services.ImageService, *services.StrategyService, error) {
	tmpl, err := prompts.Load(cfg.Prompts.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load prompts: %w", err)
	}
	loader := kb.NewLoader(store, logger.Named("kb"))

	textGen := textGenerator(ctx, cfg, cfg.LLM.TextModel, logger.Named("llm"))
	sceneGen := textGenerator(ctx, cfg, cfg.LLM.SceneModel, logger.Named("llm.scene"))

	var renderer imagegen.Renderer
	renderer, err = imagegen.New(ctx, imagegen.Settings{
		Backend: cfg.Images.Backend,
		APIKey:  firstNonEmpty(cfg.Images.APIKey, cfg.LLM.APIKey),
		Model:   cfg.Images.Model,
	})
	if err != nil {
		logger.Warn("image backend unavailable, image endpoints will report not configured", "error", err)
		renderer = nil
	}

	var brand *imagegen.BrandMark
	if cfg.Images.LogoPath != "" {
		if brand, err = imagegen.LoadBrandMark(cfg.Images.LogoPath); err != nil {
			logger.Warn("brand logo unavailable, images render without it", "path", cfg.Images.LogoPath, "error", err)
			brand = nil
		}
	}

	objects, err := objectStore(cfg)
	if err != nil {
		logger.Warn("object storage unavailable, image endpoints will report not configured", "error", err)
		objects = nil
	}

	images := services.NewImageService(services.ImageDeps{
		Store:       store,
		Knowledge:   loader,
		SceneWriter: sceneGen,
		Renderer:    renderer,
		Objects:     objects,
		Brand:       brand,
		LogoMode:    cfg.Images.LogoMode,
		Prompts:     tmpl,
		Logger:      logger.Named("images"),
		Timeout:     cfg.Images.Timeout,
	})
	gen := services.NewGenerationService(store, loader, textGen, tmpl, images, logger.Named("generation"))
	strategy := services.NewStrategyService(store, loader, textGen, tmpl, logger.Named("strategy"))
	return gen, images, strategy, nil
}

func textGenerator(ctx context.Context, cfg *config.Config, model string, logger *logging.Logger) llm.TextGenerator {
	gen, err := llm.New(ctx, llm.Settings{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		logger.Warn("text model unavailable", "model", model, "error", err)
		return nil
	}
	return gen
}

func objectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "local":
		base := cfg.Storage.PublicBaseURL
		if base == "" {
			base = "http://localhost" + cfg.Server.Addr + localFilesPrefix
		}
		s, err := storage.NewLocalStore(cfg.Storage.LocalDir, base)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "", "supabase":
		s, err := storage.NewSupabaseStore(cfg.Storage.URL, cfg.Storage.ServiceKey, cfg.Storage.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func newEcho(cfg *config.Config, logger *logging.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)

	httpLog := logger.Named("http")
	e.Use(otelecho.Middleware("contenthub"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				httpLog.Warn("request failed", append(kv, "error", v.Error)...)
				return nil
			}
			httpLog.Info("request", kv...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
