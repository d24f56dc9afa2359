package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session      *Session
	expiresAt    time.Time
	lastAccessed time.Time
}

// MemoryStore is a thread-safe in-process Store with TTL and LRU eviction.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates a store. A zero ttl disables expiry and a zero
// maxEntries disables eviction.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get implements Store. Expired entries are removed on access.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now()
	if m.expired(entry, now) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	entry.lastAccessed = now
	return entry.session.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[s.ID]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evict(now)
	}

	entry := &memoryEntry{session: s.Clone(), lastAccessed: now}
	if m.ttl > 0 {
		entry.expiresAt = now.Add(m.ttl)
	}
	m.entries[s.ID] = entry
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// evict drops expired entries, falling back to the least recently used one.
// Caller must hold the write lock.
func (m *MemoryStore) evict(now time.Time) {
	removed := false
	for id, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, id)
			removed = true
		}
	}
	if removed {
		return
	}

	var oldestID string
	var oldest time.Time
	first := true
	for id, e := range m.entries {
		if first || e.lastAccessed.Before(oldest) {
			oldestID, oldest = id, e.lastAccessed
			first = false
		}
	}
	if oldestID != "" {
		delete(m.entries, oldestID)
	}
}
