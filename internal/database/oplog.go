package database

import (
	"context"
	"fmt"
	"time"

	"docsync/internal/model"
)

func (s *Store) AppendOperation(ctx context.Context, op model.Operation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, tenant_id, document_id, operation, path, size_bytes, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.ID, op.TenantID, op.DocumentID, op.Operation, op.Path, op.SizeBytes, op.Success, op.ErrorMessage, op.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending operation: %w", err)
	}
	return nil
}

func (s *Store) TrimOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("trimming operations: %w", err)
	}
	trimmed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trimming operations: %w", err)
	}
	return trimmed, nil
}
