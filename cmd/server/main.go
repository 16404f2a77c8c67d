package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contenthub/backend/internal/config"
	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/repository"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:          "contenthub",
		Short:        "Content generation service for LinkedIn and X",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "Path to .env file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and MCP server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			RunE:  runMigrate,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"llm_provider", cfg.LLM.Provider,
		"image_backend", cfg.Images.Backend,
		"storage_driver", cfg.Storage.Driver,
	)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) (repository.Repository, error) {
	store, err := repository.Open(ctx, repository.OpenOptions{
		Driver:     cfg.DB.Driver,
		URL:        cfg.DatabaseURL(),
		SQLitePath: cfg.DB.SQLitePath,
		Migrate:    migrate,
	}, logger.Named("repository"))
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return store, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStore(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("Schema applied", "driver", cfg.DB.Driver)
	return nil
}
