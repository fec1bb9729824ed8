package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is a cached value with its expiry
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a small in-memory TTL cache safe for concurrent use
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]Entry[V]
	now   func() time.Time
}

// New creates an empty cache
func New[V any]() *Cache[V] {
	return &Cache[V]{items: map[string]Entry[V]{}, now: time.Now}
}

// Set stores value until ttl elapses
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.SetUntil(key, value, c.now().Add(ttl))
}

// SetUntil stores value until the given instant
func (c *Cache[V]) SetUntil(key string, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = Entry[V]{Value: value, ExpiresAt: expiresAt}
}

// Get returns the value if present and not yet expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero V
	entry, ok := c.items[key]
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return zero, false
	}
	return entry.Value, true
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes all keys with the given prefix
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Purge drops expired entries and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, entry := range c.items {
		if !now.Before(entry.ExpiresAt) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired or not
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
