// Package cache provides a small in-memory TTL cache. It reconstructs the
// shape store.Store (teacher: store/store.go) expects from a cache package —
// Config{DefaultTTL, CleanupInterval, MaxItems, OnEviction} plus New/Close —
// since the teacher's own store/cache package was not part of the retrieved
// pack; this is a from-scratch implementation of that contract, not an
// adaptation of a teacher file.
package cache

import (
	"sync"
	"time"
)

// Config controls eviction behavior of a Cache.
type Config struct {
	// OnEviction, if set, is invoked (outside the lock) whenever an entry is
	// removed by expiry, capacity eviction, or explicit Delete.
	OnEviction func(key string, value any)

	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxItems        int
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a goroutine-safe TTL cache with an optional capacity bound.
// Eviction on overflow is oldest-insertion-first, tracked via insertion
// order rather than access recency (a simple FIFO, not LRU).
type Cache struct {
	entries map[string]*entry
	order   []string
	onEvict func(key string, value any)
	stop    chan struct{}
	mu      sync.Mutex
	ttl     time.Duration
	max     int
}

// New creates a Cache and starts its background cleanup loop.
func New(cfg Config) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     cfg.DefaultTTL,
		max:     cfg.MaxItems,
		onEvict: cfg.OnEviction,
		stop:    make(chan struct{}),
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go c.cleanupLoop(interval)
	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	var evicted []string
	var evictedVals []any

	c.mu.Lock()
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			evicted = append(evicted, k)
			evictedVals = append(evictedVals, e.value)
			delete(c.entries, k)
		}
	}
	if len(evicted) > 0 {
		c.order = removeAll(c.order, evicted)
	}
	c.mu.Unlock()

	c.notify(evicted, evictedVals)
}

func removeAll(order []string, remove []string) []string {
	removeSet := make(map[string]struct{}, len(remove))
	for _, k := range remove {
		removeSet[k] = struct{}{}
	}
	kept := order[:0]
	for _, k := range order {
		if _, gone := removeSet[k]; !gone {
			kept = append(kept, k)
		}
	}
	return kept
}

func (c *Cache) notify(keys []string, values []any) {
	if c.onEvict == nil {
		return
	}
	for i, k := range keys {
		c.onEvict(k, values[i])
	}
}

// Set stores value under key using the cache's default TTL. A zero TTL
// means the entry never expires on its own (still subject to capacity
// eviction).
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry{value: value, expiresAt: expiresAt}

	var evictedKey string
	var evictedVal any
	evicted := false
	if c.max > 0 && len(c.entries) > c.max {
		evictedKey = c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[evictedKey]; ok {
			evictedVal = e.value
			evicted = true
		}
		delete(c.entries, evictedKey)
	}
	c.mu.Unlock()

	if evicted {
		c.notify([]string{evictedKey}, []any{evictedVal})
	}
}

// Get returns the cached value for key and whether it was present and
// unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.order = removeAll(c.order, []string{key})
		c.mu.Unlock()
		c.notify([]string{key}, []any{e.value})
		return nil, false
	}
	c.mu.Unlock()
	return e.value, true
}

// Delete removes key from the cache, if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.order = removeAll(c.order, []string{key})
	}
	c.mu.Unlock()

	if ok {
		c.notify([]string{key}, []any{e.value})
	}
}

// Close stops the background cleanup goroutine. Safe to call once.
func (c *Cache) Close() {
	close(c.stop)
}
