// Package blob provides the storage backends for document content and
// sidecar blobs: S3 for real deployments, SQLite-backed local storage for
// single-node setups, and an in-memory store for tests.
package blob

import (
	"context"
	"database/sql"
	"fmt"

	"docsync/internal/config"
	"docsync/internal/syncer"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the
// storage config type. The local variant shares the catalog's SQLite
// connection, which the caller passes in; it is ignored for other types.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.StorageConfig, db *sql.DB) (syncer.BlobStore, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "local":
		if db == nil {
			return nil, fmt.Errorf("local storage requires the catalog database")
		}
		return NewLocalStore(db), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
