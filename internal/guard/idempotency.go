// Package guard provides the process-local admission primitives wrapped
// around webhook entry points: duplicate-delivery detection and
// fixed-window rate limiting. Both are deliberately best-effort; the
// ceilings and windows are chosen so that false rejections of legitimate
// traffic do not happen.
package guard

import (
	"sync"
	"time"
)

// Cache is the expiring key store backing the deduper. The in-memory
// implementation below and a distributed cache are interchangeable
// behind this contract.
type Cache interface {
	// SetIfAbsent records key with the given TTL and reports whether the
	// key was absent (or expired) before the call.
	SetIfAbsent(key string, ttl time.Duration) bool
}

// sweepThreshold is the map size past which writes trigger an
// opportunistic sweep of expired entries.
const sweepThreshold = 4096

// MemoryCache is a process-local Cache: a key→expiry map with
// opportunistic eviction.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]time.Time), now: time.Now}
}

// SetIfAbsent implements Cache.
func (c *MemoryCache) SetIfAbsent(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return false
	}

	if len(c.entries) > sweepThreshold {
		for k, exp := range c.entries {
			if !now.Before(exp) {
				delete(c.entries, k)
			}
		}
	}

	c.entries[key] = now.Add(ttl)
	return true
}

// Deduper detects duplicate webhook deliveries by their stable event
// key. The TTL matches the upstream platform's retry horizon.
type Deduper struct {
	cache Cache
	ttl   time.Duration
}

// NewDeduper creates a deduper over the given cache.
func NewDeduper(cache Cache, ttl time.Duration) *Deduper {
	return &Deduper{cache: cache, ttl: ttl}
}

// Admit reports whether the event key is seen for the first time inside
// the TTL window. A duplicate must be acknowledged upstream as success
// without reprocessing.
func (d *Deduper) Admit(eventKey string) bool {
	if eventKey == "" {
		return true
	}
	return d.cache.SetIfAbsent(eventKey, d.ttl)
}
