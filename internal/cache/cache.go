// Package cache implements the optional Cache abstraction the Route
// Optimizer's candidate lookup and the adapter idempotency stores sit on
// top of: an in-memory default plus a Redis-backed implementation for a
// deployment that wants the cache and the dedup store shared across
// process instances.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a byte-oriented get/set store with per-key TTL. Both the route
// candidate cache and the adapter idempotency stores serialize through it,
// so one Redis deployment can back both.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// InMemory is the default Cache: a mutex-guarded map with lazy TTL
// expiry, good for a single-process deployment or tests.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

// NewInMemory creates an empty InMemory cache.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]memEntry)}
}

// Get implements Cache.
func (c *InMemory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache. A zero ttl means the entry never expires.
func (c *InMemory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.entries[key] = memEntry{value: value, expires: expires}
	return nil
}
