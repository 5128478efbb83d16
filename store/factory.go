package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"     - JSON files in DataDir (default)
//	"sqlite"   - SQLite database at DataDir/memdb.db
//	"postgres" - PostgreSQL at DSN
//	"memory"   - In-memory (ephemeral, for testing)
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "json", "":
		return NewJsonFileStore(cfg.DataDir)
	case "sqlite":
		return NewSqliteStore(filepath.Join(cfg.DataDir, "memdb.db"))
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: json, sqlite, postgres, memory)", ErrUnknownBackend, cfg.Backend)
	}
}
