package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Cache = (*MemoryCache)(nil)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache backed by a mutex-guarded map.
// Expired entries are evicted lazily on Get rather than swept proactively;
// the entry count is bounded by request volume over the TTL window, so size
// is left unbounded on purpose.
type MemoryCache struct {
	serviceName string
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an empty in-memory cache. The service name prefixes
// every generated key so idempotency and reservation entries can share an
// instance without colliding.
func NewMemoryCache(serviceName string) *MemoryCache {
	return &MemoryCache{
		serviceName: serviceName,
		now:         time.Now,
		entries:     make(map[string]memoryEntry),
	}
}

// WithClock replaces the time source. Tests inject a deterministic clock to
// exercise expiry without sleeping.
func (m *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	m.now = now
	return m
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", m.serviceName, operation, key)
}
