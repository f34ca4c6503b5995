package model

import "time"

// Tier names a tenant's plan. Limits for each tier come from configuration.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// Document is the authoritative catalog row for a synced document.
type Document struct {
	ID          string     // UUID, stable for the document's lifetime
	TenantID    string     // Owning tenant
	Path        string     // Canonical relative path, unique per tenant among live rows
	Version     int64      // Starts at 1, bumped by upload and conflict resolution
	ContentHash string     // SHA-256 hex of the content bytes
	SidecarHash string     // SHA-256 hex of the serialized sidecar
	ContentKey  string     // Blob store locator for the content
	SidecarKey  string     // Blob store locator for the sidecar
	SizeBytes   int64      // Bytes charged to the tenant ledger for this row
	UpdatedAt   time.Time  // Last mutation
	DeletedAt   *time.Time // Set iff soft-deleted
}

// Live reports whether the document has not been soft-deleted.
func (d *Document) Live() bool { return d.DeletedAt == nil }

// Ledger is the per-tenant rollup of storage usage.
// DocumentCount and TotalSizeBytes cover live (non-soft-deleted) rows only.
type Ledger struct {
	TenantID       string
	DocumentCount  int64
	TotalSizeBytes int64
	LastSyncAt     *time.Time
	UpdatedAt      time.Time
}

// Resolution is a conflict resolution strategy chosen by the client.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"  // preserved proposer revision becomes current
	ResolutionRemote Resolution = "remote" // current revision stands
	ResolutionBoth   Resolution = "both"   // current stands, proposer copied to a derived path
)

// Valid reports whether r is one of the three accepted strategies.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionLocal, ResolutionRemote, ResolutionBoth:
		return true
	}
	return false
}

// Conflict preserves a revision that was proposed against a stale base version.
// "Local" is the proposer's side, "remote" the revision that was current when
// the conflict was recorded.
type Conflict struct {
	ID                string // UUID
	DocumentID        string
	TenantID          string
	LocalVersion      int64 // proposer's base version
	RemoteVersion     int64 // catalog version at the time of conflict
	LocalContentHash  string
	RemoteContentHash string
	LocalBlobKey      string // conflict-namespace content key for the proposer blobs
	RemoteBlobKey     string // current-namespace content key at recording time
	CreatedAt         time.Time
	ResolvedAt        *time.Time
	Resolution        Resolution // empty until resolved
}

// Resolved reports whether the conflict has been resolved.
func (c *Conflict) Resolved() bool { return c.ResolvedAt != nil }

// Operation is one append-only audit log row. Both successes and failures are
// recorded; the sweeper trims old rows.
type Operation struct {
	ID           string // UUID
	TenantID     string
	DocumentID   string // empty when the operation never reached a document
	Operation    string // "upload", "download", "rename", "soft_delete", "resolve_conflict"
	Path         string
	SizeBytes    int64
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}
