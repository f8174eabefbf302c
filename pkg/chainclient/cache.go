package chainclient

import (
	"sync"
	"time"
)

// TTLCache caches values per key for a fixed duration
type TTLCache[V any] struct {
	mu    sync.RWMutex
	cache map[string]cachedValue[V]
	ttl   time.Duration
	now   func() time.Time
}

type cachedValue[V any] struct {
	value     V
	timestamp time.Time
}

// NewTTLCache creates a new cache whose entries expire after ttl
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		cache: make(map[string]cachedValue[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a cached value if it's still valid
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[key]
	if !exists || c.now().Sub(cached.timestamp) > c.ttl {
		var zero V
		return zero, false
	}
	return cached.value, true
}

// Set stores a value with the current timestamp
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cachedValue[V]{value: value, timestamp: c.now()}
}

// Clear removes all cached entries
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cachedValue[V])
}

// Len returns the number of entries, including expired ones not yet overwritten
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
