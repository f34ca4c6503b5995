// Package database implements the document catalog, conflict store, and
// operation log on SQLite. Every mutator runs catalog and ledger writes in a
// single transaction; blob I/O never happens here.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docsync/internal/database/migrations"
	"docsync/internal/model"
	"docsync/internal/syncer"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements syncer.Catalog, syncer.ConflictStore, and
// syncer.OperationLog on a single SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a store over a SQLite database at path.
// path can be a file path or ":memory:" for an in-memory database.
func NewStore(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// NewStoreFromDB wraps an existing connection. The caller is responsible for
// ensuring the connection is properly configured.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the store relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	// Request handlers contend on the write lock; wait instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return db, nil
}

// DB exposes the underlying connection so the local blob backend can share
// it.
func (s *Store) DB() *sql.DB { return s.db }

// CheckMigrations verifies the schema is up to date.
func (s *Store) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const documentColumns = `id, tenant_id, path, version, content_hash, sidecar_hash,
	content_key, sidecar_key, size_bytes, updated_at, deleted_at`

type docScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row docScanner) (*model.Document, error) {
	var d model.Document
	var deletedAt sql.NullTime
	err := row.Scan(&d.ID, &d.TenantID, &d.Path, &d.Version, &d.ContentHash, &d.SidecarHash,
		&d.ContentKey, &d.SidecarKey, &d.SizeBytes, &d.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		d.DeletedAt = &t
	}
	return &d, nil
}

func (s *Store) GetByPath(ctx context.Context, tenantID, path string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND path = ? AND deleted_at IS NULL
	`, tenantID, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by path: %w", err)
	}
	return doc, nil
}

func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return doc, nil
}

func (s *Store) UpsertOnUpload(ctx context.Context, p syncer.UpsertParams) (syncer.UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncer.UpsertOutcome{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := p.Now.UTC()

	live, err := s.txGetLiveByPath(ctx, tx, p.TenantID, p.Path)
	if err != nil {
		return syncer.UpsertOutcome{}, err
	}

	// The precondition re-check: the decision made outside the transaction
	// is only advisory, this one is authoritative.
	if live != nil && p.BaseVersion != nil && *p.BaseVersion != live.Version {
		return syncer.UpsertOutcome{Conflict: live}, nil
	}

	var prevSize int64
	isNew := live == nil
	if live != nil {
		prevSize = live.SizeBytes
	}

	ledger, err := s.txGetLedger(ctx, tx, p.TenantID)
	if err != nil {
		return syncer.UpsertOutcome{}, err
	}
	if admitErr := syncer.Admit(ledger, p.Limits, p.SizeBytes-prevSize, isNew); admitErr != nil {
		return syncer.UpsertOutcome{}, admitErr
	}

	if live != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET version = version + 1, content_hash = ?, sidecar_hash = ?,
			    content_key = ?, sidecar_key = ?, size_bytes = ?, updated_at = ?, deleted_at = NULL
			WHERE id = ?
		`, p.ContentHash, p.SidecarHash, p.ContentKey, p.SidecarKey, p.SizeBytes, now, live.ID)
		if err != nil {
			return syncer.UpsertOutcome{}, fmt.Errorf("updating document: %w", err)
		}
	} else {
		// The id may belong to a soft-deleted row (restore-by-upload);
		// bump it back to life instead of violating the primary key.
		byID, err := s.txGetByID(ctx, tx, p.TenantID, p.DocumentID)
		if err != nil {
			return syncer.UpsertOutcome{}, err
		}
		if byID != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE documents
				SET path = ?, version = version + 1, content_hash = ?, sidecar_hash = ?,
				    content_key = ?, sidecar_key = ?, size_bytes = ?, updated_at = ?, deleted_at = NULL
				WHERE id = ?
			`, p.Path, p.ContentHash, p.SidecarHash, p.ContentKey, p.SidecarKey, p.SizeBytes, now, p.DocumentID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (id, tenant_id, path, version, content_hash, sidecar_hash,
					content_key, sidecar_key, size_bytes, updated_at)
				VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
			`, p.DocumentID, p.TenantID, p.Path, p.ContentHash, p.SidecarHash, p.ContentKey, p.SidecarKey, p.SizeBytes, now)
		}
		if err != nil {
			return syncer.UpsertOutcome{}, fmt.Errorf("inserting document: %w", err)
		}
	}

	if err := s.txApplyLedger(ctx, tx, p.TenantID, p.SizeBytes-prevSize, now, true); err != nil {
		return syncer.UpsertOutcome{}, err
	}

	doc, err := s.txGetByID(ctx, tx, p.TenantID, p.DocumentID)
	if err != nil {
		return syncer.UpsertOutcome{}, err
	}
	if doc == nil {
		return syncer.UpsertOutcome{}, fmt.Errorf("document %s vanished mid-transaction", p.DocumentID)
	}

	if err := tx.Commit(); err != nil {
		return syncer.UpsertOutcome{}, fmt.Errorf("committing transaction: %w", err)
	}
	return syncer.UpsertOutcome{Document: doc}, nil
}

func (s *Store) Rename(ctx context.Context, tenantID, id, newPath string, now time.Time) (*model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := s.txGetByID(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || !doc.Live() {
		return nil, syncer.Errf(syncer.KindNotFound, "document %s not found", id)
	}

	taken, err := s.txGetLiveByPath(ctx, tx, tenantID, newPath)
	if err != nil {
		return nil, err
	}
	if taken != nil && taken.ID != id {
		return nil, syncer.Errf(syncer.KindPathInUse, "path %s is already in use", newPath)
	}

	// Rename bumps UpdatedAt but never Version.
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET path = ?, updated_at = ? WHERE id = ?
	`, newPath, now.UTC(), id); err != nil {
		return nil, fmt.Errorf("renaming document: %w", err)
	}

	doc, err = s.txGetByID(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return doc, nil
}

func (s *Store) SoftDelete(ctx context.Context, tenantID, id string, now time.Time) (*model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := s.txGetByID(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || !doc.Live() {
		return nil, syncer.Errf(syncer.KindNotFound, "document %s not found", id)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ?
	`, now.UTC(), now.UTC(), id); err != nil {
		return nil, fmt.Errorf("soft-deleting document: %w", err)
	}

	if err := s.txApplyLedger(ctx, tx, tenantID, -doc.SizeBytes, now.UTC(), false); err != nil {
		return nil, err
	}

	doc, err = s.txGetByID(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return doc, nil
}

func (s *Store) Purge(ctx context.Context, tenantID, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := s.txGetByID(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil // already purged
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purging document: %w", err)
	}

	// Soft-deleted rows were already discharged from the ledger.
	var delta int64
	if doc.Live() {
		delta = -doc.SizeBytes
	}
	if err := s.txApplyLedger(ctx, tx, tenantID, delta, now.UTC(), false); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.Document, string, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = ? AND deleted_at IS NULL
	`
	args := []any{tenantID}

	if cursor != "" {
		cursorTime, cursorID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += ` AND (updated_at < ? OR (updated_at = ? AND id < ?))`
		args = append(args, cursorTime, cursorTime, cursorID)
	}

	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]model.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating documents: %w", err)
	}

	next := ""
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[limit-1]
		next = encodeCursor(last.UpdatedAt, last.ID)
	}
	return docs, next, nil
}

func (s *Store) GetLedger(ctx context.Context, tenantID string) (model.Ledger, error) {
	return s.getLedger(ctx, s.db, tenantID)
}

func (s *Store) ExpiredSoftDeletes(ctx context.Context, cutoff time.Time) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE deleted_at IS NOT NULL AND deleted_at < ?
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing expired soft-deletes: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired soft-deletes: %w", err)
	}
	return docs, nil
}

// querier lets the ledger read run on either the pool or a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getLedger(ctx context.Context, q querier, tenantID string) (model.Ledger, error) {
	var l model.Ledger
	var lastSync sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT tenant_id, document_count, total_size_bytes, last_sync_at, updated_at
		FROM ledgers
		WHERE tenant_id = ?
	`, tenantID).Scan(&l.TenantID, &l.DocumentCount, &l.TotalSizeBytes, &lastSync, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ledger{TenantID: tenantID}, nil
	}
	if err != nil {
		return model.Ledger{}, fmt.Errorf("reading ledger: %w", err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		l.LastSyncAt = &t
	}
	return l, nil
}

func (s *Store) txGetLedger(ctx context.Context, tx *sql.Tx, tenantID string) (model.Ledger, error) {
	return s.getLedger(ctx, tx, tenantID)
}

// txApplyLedger upserts the tenant ledger: the byte total moves by delta
// (clamped at zero) while the document count is recomputed from live rows so
// the ledger stays authoritative under drift.
func (s *Store) txApplyLedger(ctx context.Context, tx *sql.Tx, tenantID string, deltaBytes int64, now time.Time, touchSync bool) error {
	var count int64
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE tenant_id = ? AND deleted_at IS NULL
	`, tenantID).Scan(&count)
	if err != nil {
		return fmt.Errorf("counting live documents: %w", err)
	}

	ledger, err := s.txGetLedger(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	total := ledger.TotalSizeBytes + deltaBytes
	if total < 0 {
		total = 0
	}

	lastSync := any(nil)
	if ledger.LastSyncAt != nil {
		lastSync = ledger.LastSyncAt.UTC()
	}
	if touchSync {
		lastSync = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledgers (tenant_id, document_count, total_size_bytes, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			document_count = excluded.document_count,
			total_size_bytes = excluded.total_size_bytes,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at
	`, tenantID, count, total, lastSync, now)
	if err != nil {
		return fmt.Errorf("applying ledger: %w", err)
	}
	return nil
}

func (s *Store) txGetLiveByPath(ctx context.Context, tx *sql.Tx, tenantID, path string) (*model.Document, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND path = ? AND deleted_at IS NULL
	`, tenantID, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by path: %w", err)
	}
	return doc, nil
}

func (s *Store) txGetByID(ctx context.Context, tx *sql.Tx, tenantID, id string) (*model.Document, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return doc, nil
}

// encodeCursor packs a list position into an opaque token. Ties on the
// timestamp break by id, so the pair restarts the scan exactly.
func encodeCursor(t time.Time, id string) string {
	return strconv.FormatInt(t.UTC().UnixNano(), 10) + ":" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	nanos, id, ok := strings.Cut(cursor, ":")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor: %w", err)
	}
	return time.Unix(0, n).UTC(), id, nil
}

// Compile-time checks that Store satisfies the core interfaces.
var (
	_ syncer.Catalog       = (*Store)(nil)
	_ syncer.ConflictStore = (*Store)(nil)
	_ syncer.OperationLog  = (*Store)(nil)
)
