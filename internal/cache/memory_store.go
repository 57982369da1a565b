package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]Entry),
	}
}

// KeyExists reports whether key has an entry.
func (m *MemoryStore) KeyExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok, nil
}

// Save upserts the payload for key.
func (m *MemoryStore) Save(_ context.Context, key string, payload []byte) error {
	data := make([]byte, len(payload))
	copy(data, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, Payload: data, Updated: m.clock.Now().UTC()}
	return nil
}

// Retrieve returns the payload for key.
func (m *MemoryStore) Retrieve(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(e.Payload))
	copy(data, e.Payload)
	return data, nil
}

// KeyUpdated returns the last save time of key.
func (m *MemoryStore) KeyUpdated(_ context.Context, key string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	updated := e.Updated
	return &updated, nil
}

// Clear deletes key, or everything when key is empty.
func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		m.entries = make(map[string]Entry)
		return nil
	}
	delete(m.entries, key)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
