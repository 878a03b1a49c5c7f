// Package cache provides a small bounded in-memory cache shared by
// independent crawl runs. Entries are advisory: losing one only costs a
// repeated LLM call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// Cache is a bounded map with random eviction and an optional TTL.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.RWMutex
	store      map[string]*entry[V]
	maxEntries int
	ttl        time.Duration

	hits   int64
	misses int64
}

// New creates a cache holding at most maxEntries values. A ttl <= 0 means
// entries never expire on age.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[V]{
		store:      make(map[string]*entry[V], maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Key hashes parts into a cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the value stored under key, if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	var zero V
	if !ok || c.expired(e) {
		c.mu.Lock()
		c.misses++
		if ok {
			c.dropLocked(key, e)
		}
		c.mu.Unlock()
		return zero, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key. At capacity a random entry is evicted
// (map iteration order is random).
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry[V]{value: value, createdAt: time.Now()}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stats returns hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// dropLocked deletes key only while it still holds stale. A concurrent Set
// between the read and write lock replaces the entry and must survive.
func (c *Cache[V]) dropLocked(key string, stale *entry[V]) {
	if c.store[key] == stale {
		delete(c.store, key)
	}
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && time.Since(e.createdAt) > c.ttl
}
