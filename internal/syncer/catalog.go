package syncer

import (
	"context"
	"time"

	"docsync/internal/model"
)

// UpsertParams carries everything the catalog needs to record an uploaded
// revision in one transaction: the row fields, the optimistic-concurrency
// base version, and the tier limits for the in-transaction quota re-check.
type UpsertParams struct {
	TenantID    string
	DocumentID  string // existing id for overwrites, freshly generated for creates
	Path        string // canonical
	ContentHash string
	SidecarHash string
	ContentKey  string
	SidecarKey  string
	SizeBytes   int64
	BaseVersion *int64 // nil skips the version precondition
	Limits      TierLimits
	Now         time.Time
}

// UpsertOutcome is the result of UpsertOnUpload. Exactly one field is set:
// Document on success, Conflict (the current row, unmodified) when the
// base version precondition failed inside the transaction.
type UpsertOutcome struct {
	Document *model.Document
	Conflict *model.Document
}

// Catalog is the authoritative metadata store for documents and the tenant
// ledger. Every mutator runs catalog and ledger writes in a single
// transaction; no implementation may perform blob I/O while one is open.
// Lookups return (nil, nil) when no row matches.
type Catalog interface {
	// GetByPath returns the live document at a canonical path.
	GetByPath(ctx context.Context, tenantID, path string) (*model.Document, error)

	// GetByID returns a document in any state, soft-deleted included.
	GetByID(ctx context.Context, tenantID, id string) (*model.Document, error)

	// UpsertOnUpload inserts a document at version 1 or bumps the existing
	// row, re-checking the base version and the tenant quota inside the
	// transaction. The ledger delta (including the document count on create
	// and un-soft-delete) is applied in the same transaction, and
	// LastSyncAt is advanced.
	UpsertOnUpload(ctx context.Context, p UpsertParams) (UpsertOutcome, error)

	// Rename moves a live document to a new canonical path. Bumps UpdatedAt
	// but not Version. Fails path_in_use when another live row holds the
	// path, not_found when the document is missing or soft-deleted.
	Rename(ctx context.Context, tenantID, id, newPath string, now time.Time) (*model.Document, error)

	// SoftDelete marks a live document deleted and applies -SizeBytes to
	// the ledger. Fails not_found for missing or already-deleted rows.
	SoftDelete(ctx context.Context, tenantID, id string, now time.Time) (*model.Document, error)

	// Purge hard-deletes a row regardless of state. Ledger adjustment only
	// applies when the row was still live.
	Purge(ctx context.Context, tenantID, id string, now time.Time) error

	// List pages live documents by UpdatedAt descending with an id
	// tie-break. cursor is the opaque value returned by a previous call;
	// empty starts from the newest row. The returned cursor is empty when
	// the page is the last one.
	List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.Document, string, error)

	// GetLedger returns the tenant's ledger, or a zero-valued ledger when
	// the tenant has never synced.
	GetLedger(ctx context.Context, tenantID string) (model.Ledger, error)

	// ExpiredSoftDeletes returns rows soft-deleted before cutoff.
	ExpiredSoftDeletes(ctx context.Context, cutoff time.Time) ([]model.Document, error)

	Close() error
}

// ConflictStore preserves losing revisions and their resolution state.
type ConflictStore interface {
	InsertConflict(ctx context.Context, c model.Conflict) error

	// GetConflict returns (nil, nil) when no row matches.
	GetConflict(ctx context.Context, tenantID, id string) (*model.Conflict, error)

	ListOpenConflicts(ctx context.Context, tenantID string) ([]model.Conflict, error)

	// MarkResolved sets the resolution exactly once. Fails not_found for a
	// missing row and already_resolved for a second attempt.
	MarkResolved(ctx context.Context, tenantID, id string, res model.Resolution, at time.Time) error

	// ResolvedConflictsBefore returns conflicts resolved before cutoff.
	ResolvedConflictsBefore(ctx context.Context, cutoff time.Time) ([]model.Conflict, error)

	DeleteConflict(ctx context.Context, id string) error
}

// OperationLog is the append-only audit trail. Appends are best-effort from
// the coordinator's point of view and never abort the operation they record.
type OperationLog interface {
	AppendOperation(ctx context.Context, op model.Operation) error

	// TrimOperationsBefore deletes rows older than cutoff, returning how
	// many were removed.
	TrimOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
