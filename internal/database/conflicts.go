package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docsync/internal/model"
	"docsync/internal/syncer"
)

const conflictColumns = `id, document_id, tenant_id, local_version, remote_version,
	local_content_hash, remote_content_hash, local_blob_key, remote_blob_key,
	created_at, resolved_at, resolution`

func scanConflict(row docScanner) (*model.Conflict, error) {
	var c model.Conflict
	var resolvedAt sql.NullTime
	var resolution sql.NullString
	err := row.Scan(&c.ID, &c.DocumentID, &c.TenantID, &c.LocalVersion, &c.RemoteVersion,
		&c.LocalContentHash, &c.RemoteContentHash, &c.LocalBlobKey, &c.RemoteBlobKey,
		&c.CreatedAt, &resolvedAt, &resolution)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if resolution.Valid {
		c.Resolution = model.Resolution(resolution.String)
	}
	return &c, nil
}

func (s *Store) InsertConflict(ctx context.Context, c model.Conflict) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, document_id, tenant_id, local_version, remote_version,
			local_content_hash, remote_content_hash, local_blob_key, remote_blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.DocumentID, c.TenantID, c.LocalVersion, c.RemoteVersion,
		c.LocalContentHash, c.RemoteContentHash, c.LocalBlobKey, c.RemoteBlobKey, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting conflict: %w", err)
	}
	return nil
}

func (s *Store) GetConflict(ctx context.Context, tenantID, id string) (*model.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding conflict: %w", err)
	}
	return c, nil
}

func (s *Store) ListOpenConflicts(ctx context.Context, tenantID string) ([]model.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE tenant_id = ? AND resolved_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing open conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *Store) MarkResolved(ctx context.Context, tenantID, id string, res model.Resolution, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conflicts SET resolved_at = ?, resolution = ?
		WHERE tenant_id = ? AND id = ? AND resolved_at IS NULL
	`, at.UTC(), string(res), tenantID, id)
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}
	if affected == 0 {
		existing, err := s.GetConflict(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return syncer.Errf(syncer.KindNotFound, "conflict %s not found", id)
		}
		return syncer.Errf(syncer.KindAlreadyResolved, "conflict %s already resolved as %s", id, existing.Resolution)
	}
	return nil
}

func (s *Store) ResolvedConflictsBefore(ctx context.Context, cutoff time.Time) ([]model.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE resolved_at IS NOT NULL AND resolved_at < ?
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing resolved conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *Store) DeleteConflict(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conflict: %w", err)
	}
	return nil
}
