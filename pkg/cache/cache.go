// Package cache provides a small TTL keyed cache used for counter rate
// baselines and other short-lived lookup state. Staleness policy lives here
// instead of being repeated as inline timestamp math at every call site.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	insertedAt time.Time
}

// TTLCache is a concurrency-safe key/value cache with per-read freshness checks.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]entry)}
}

// Put stores value under key, stamping the insertion time.
func (c *TTLCache) Put(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, insertedAt: time.Now()}
	c.mu.Unlock()
}

// GetIfFresh returns the value stored under key if it was inserted within ttl.
// A ttl <= 0 disables the freshness check.
func (c *TTLCache) GetIfFresh(key string, ttl time.Duration) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if ttl > 0 && time.Since(e.insertedAt) > ttl {
		return nil, false
	}
	return e.value, true
}

// Get returns the value stored under key regardless of age, plus its insertion time.
func (c *TTLCache) Get(key string) (interface{}, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}
	return e.value, e.insertedAt, true
}

// Delete removes key from the cache.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune removes entries older than ttl and reports how many were dropped.
func (c *TTLCache) Prune(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped int
	for k, e := range c.entries {
		if time.Since(e.insertedAt) > ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}
