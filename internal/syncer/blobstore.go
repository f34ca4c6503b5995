package syncer

import (
	"context"
	"fmt"
	"time"
)

// Blob roles within a document's key pair.
const (
	RoleContent = "content"
	RoleSidecar = "sidecar"
)

// DocumentKey returns the blob key for a document's current content or
// sidecar. Keys are stable forward-slash paths shared by every backend.
func DocumentKey(tenantID, docID, role string) string {
	return fmt.Sprintf("tenants/%s/documents/%s/%s", tenantID, docID, role)
}

// ConflictKey returns the blob key a preserved revision is stored under.
// Keys are namespaced by conflict id: two stale proposals against the same
// base version each keep their own blobs.
func ConflictKey(tenantID, docID, conflictID, role string) string {
	return fmt.Sprintf("tenants/%s/conflicts/%s/%s/%s", tenantID, docID, conflictID, role)
}

// TenantPrefix returns the key prefix covering every blob a tenant owns.
func TenantPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/", tenantID)
}

// BlobMeta travels with a blob on write: integrity fingerprint plus owner
// identifiers for out-of-band repair.
type BlobMeta struct {
	ContentType string
	Hash        string
	TenantID    string
	DocumentID  string
}

// BlobInfo is the result of a Head probe.
type BlobInfo struct {
	Size int64
	Hash string
}

// BlobStore stores opaque content and sidecar blobs under stable keys.
// The backend is chosen once at startup; callers never branch on the variant.
// A missing key yields ErrBlobNotFound; all other failures are surfaced
// unchanged.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, meta BlobMeta) error
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (BlobInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)

	// SignURL mints a time-limited download URL. Backends without signing
	// support return ErrSignURLUnsupported.
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// ValidateSetup verifies the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
