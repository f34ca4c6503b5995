package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docsync/internal/syncer"
)

// LocalStore keeps blobs in the catalog's SQLite database. It exists for
// single-node deployments where running an object store is not worth it.
// SignURL is unsupported.
type LocalStore struct {
	db *sql.DB
}

// NewLocalStore wraps an existing SQLite connection. The blobs table ships
// with the catalog migrations, so sharing the connection keeps everything in
// one file on disk.
func NewLocalStore(db *sql.DB) *LocalStore {
	return &LocalStore{db: db}
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte, meta syncer.BlobMeta) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO blobs (key, tenant_id, doc_id, content_type, hash, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			content_type = excluded.content_type,
			hash = excluded.hash,
			data = excluded.data,
			created_at = excluded.created_at
	`, key, meta.TenantID, meta.DocumentID, meta.ContentType, meta.Hash, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing blob %s: %w", key, err)
	}
	return nil
}

func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := l.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncer.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

func (l *LocalStore) Head(ctx context.Context, key string) (syncer.BlobInfo, error) {
	var info syncer.BlobInfo
	err := l.db.QueryRowContext(ctx, `
		SELECT LENGTH(data), hash FROM blobs WHERE key = ?
	`, key).Scan(&info.Size, &info.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return syncer.BlobInfo{}, syncer.ErrBlobNotFound
	}
	if err != nil {
		return syncer.BlobInfo{}, fmt.Errorf("heading blob %s: %w", key, err)
	}
	return info, nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}

func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT key FROM blobs WHERE key LIKE ? || '%' ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing blobs under %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning blob key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blob keys: %w", err)
	}
	return keys, nil
}

func (l *LocalStore) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", syncer.ErrSignURLUnsupported
}

func (l *LocalStore) ValidateSetup(ctx context.Context) error {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return fmt.Errorf("blobs table not usable: %w", err)
	}
	return nil
}

var _ syncer.BlobStore = (*LocalStore)(nil)
