package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"docsync/internal/syncer"
)

// MemoryStore is an in-memory implementation of the BlobStore interface,
// useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data []byte
	meta syncer.BlobMeta
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, meta syncer.BlobMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[key] = memoryBlob{data: stored, meta: meta}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil, syncer.ErrBlobNotFound
	}
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return data, nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (syncer.BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return syncer.BlobInfo{}, syncer.ErrBlobNotFound
	}
	return syncer.BlobInfo{Size: int64(len(b.data)), Hash: b.meta.Hash}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", syncer.ErrSignURLUnsupported
}

func (m *MemoryStore) ValidateSetup(ctx context.Context) error { return nil }

// Len reports how many blobs are stored. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

var _ syncer.BlobStore = (*MemoryStore)(nil)
