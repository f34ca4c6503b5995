package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/config"
	"docsync/internal/database/migrations"
)

// NewStoreFromConfig creates a Store based on the database config type.
// The memory variant migrates on open; the sqlite variant expects the
// caller to run (or gate on) migrations explicitly.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewStore(filepath.Join(cfg.DataDir, "docsync.db"))
	case "memory":
		store, err := NewStore(":memory:")
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateUp(store.DB()); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
