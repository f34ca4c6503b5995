package testutil

import (
	"docsync/internal/blob"
)

// NewTestBlobStore creates an in-memory blob store for tests.
func NewTestBlobStore() *blob.MemoryStore {
	return blob.NewMemoryStore()
}
