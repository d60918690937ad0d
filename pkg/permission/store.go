package permission

import (
	"context"
	"sync"
	"time"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

// Entry is one cached permission lookup.
type Entry struct {
	State     platform.PermissionState `json:"state"`
	CheckedAt time.Time                `json:"checked_at"`
}

// Store persists permission cache entries. Entries older than the
// manager's TTL are treated as absent regardless of backend behavior.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Close() error
}

// MemoryStore is the in-process cache used when no shared backend is
// configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

// Get returns the entry for key when present and unexpired.
func (m *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !stored.expiresAt.IsZero() && time.Now().After(stored.expiresAt) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	return stored.entry, true, nil
}

// Set stores the entry under key with the given TTL.
func (m *MemoryStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := memoryEntry{entry: entry}
	if ttl > 0 {
		stored.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = stored
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
