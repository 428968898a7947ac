package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryService implements CacheService with an in-process TTL map.
// Used when no memcache instance is configured and in tests.
type MemoryService struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryService creates a new in-memory cache service
func NewMemoryService() *MemoryService {
	return &MemoryService{
		entries: make(map[string]memoryEntry),
	}
}

// Get retrieves a value, removing it if expired
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores a value with an expiration time. Zero expiration means no expiry.
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	return nil
}

// Delete removes a value
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
