package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry represents a cached value with expiration
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a simple in-memory cache with TTL.
// A zero or negative TTL keeps the entry until it is deleted.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]*Entry[V]
	now   func() time.Time
}

// New creates a new cache
func New[V any]() *Cache[V] {
	return &Cache[V]{items: map[string]*Entry[V]{}, now: time.Now}
}

// Set stores a value in the cache with a given TTL
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &Entry[V]{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}
	c.items[key] = entry
}

// Get retrieves a value from the cache if it hasn't expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero V
	entry, exists := c.items[key]
	if !exists || c.expired(entry) {
		return zero, false
	}
	return entry.Value, true
}

// Delete removes a key from the cache and reports whether a live entry existed
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.items[key]
	delete(c.items, key)
	return exists && !c.expired(entry)
}

// Keys returns the live keys starting with prefix
func (c *Cache[V]) Keys(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if strings.HasPrefix(key, prefix) && !c.expired(entry) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]*Entry[V]{}
}

// Invalidate removes all items matching a prefix
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

func (c *Cache[V]) expired(e *Entry[V]) bool {
	return !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt)
}
