package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"contenthub/backend/internal/logging"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenOptions selects and locates the row store.
type OpenOptions struct {
	Driver     string
	URL        string
	SQLitePath string
	// Migrate applies the schema after connecting.
	Migrate bool
}

// Open connects to the configured store. Postgres connections are pinged before returning;
// SQLite files are created and migrated on open.
func Open(ctx context.Context, opts OpenOptions, logger *logging.Logger) (Repository, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch strings.ToLower(opts.Driver) {
	case "", DriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := NewPostgresStore(pool, logger)
		if opts.Migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case DriverSQLite:
		return OpenSQLite(opts.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
}
