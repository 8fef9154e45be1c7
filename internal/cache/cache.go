// Package cache provides a read-through, per-key TTL cache that fronts slow
// persistence backends. A per-key lock guarantees at most one in-flight
// refresh per key: concurrent callers for the same stale key wait for the
// winner's fetch instead of issuing their own.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Key identifies one cached table for one tenant.
type Key struct {
	Table    string
	TenantID int64
}

type entry[V any] struct {
	fetchedAt time.Time
	value     V
}

// Cache is a process-wide read-through cache. Construct once at startup and
// share; key locks are created on demand and retained for the process
// lifetime, which is fine for a key space bounded by tenant and table.
type Cache[V any] struct {
	entries  map[Key]entry[V]
	keyLocks map[Key]*sync.Mutex
	mu       sync.RWMutex
	locksMu  sync.Mutex
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries:  make(map[Key]entry[V]),
		keyLocks: make(map[Key]*sync.Mutex),
	}
}

// GetOrFetch returns the cached value for key if it is younger than ttl,
// otherwise refreshes it via fetch. A non-positive ttl disables caching and
// always calls fetch. The global lock is held only for map operations, never
// across fetch; callers for different keys are never serialized behind each
// other.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	if ttl <= 0 {
		return fetch(ctx)
	}

	if value, ok := c.lookup(key, ttl); ok {
		slog.Debug("cache hit", "table", key.Table, "tenant", key.TenantID)
		return value, nil
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Double-check: the previous holder of this key's lock may have
	// refreshed the entry while we waited.
	if value, ok := c.lookup(key, ttl); ok {
		slog.Debug("cache hit after wait", "table", key.Table, "tenant", key.TenantID)
		return value, nil
	}

	start := time.Now()
	value, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, fetchedAt: time.Now()}
	c.mu.Unlock()

	slog.Debug("cache refresh",
		"table", key.Table,
		"tenant", key.TenantID,
		"duration", time.Since(start))

	return value, nil
}

// Invalidate removes one entry.
func (c *Cache[V]) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateTenant removes every entry belonging to the tenant.
func (c *Cache[V]) InvalidateTenant(tenantID int64) {
	c.mu.Lock()
	for key := range c.entries {
		if key.TenantID == tenantID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateAll clears the cache.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[Key]entry[V])
	c.mu.Unlock()
}

// lookup returns the entry for key if present and younger than ttl.
func (c *Cache[V]) lookup(key Key, ttl time.Duration) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.fetchedAt) > ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// keyLock returns the lock for key, creating it on first use.
func (c *Cache[V]) keyLock(key Key) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()

	lock, ok := c.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.keyLocks[key] = lock
	}
	return lock
}
