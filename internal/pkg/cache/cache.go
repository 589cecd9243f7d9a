// Package cache provides the expiring key-value store the orchestrator uses
// for idempotency replay and soft stock reservations. Values are opaque
// strings (JSON envelopes); expiry is purely TTL-based — this is not an LRU.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL key-value store. Get returns ("", false, nil) when the key
// is absent or its entry has outlived the TTL it was stored with — an
// expired entry is indistinguishable from one that never existed.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	GenerateKey(operation, key string) string
}
