package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes values by key. It is safe for concurrent use; concurrent
// misses for the same key share one computation.
//
// A disabled cache (see Disabled) never stores anything, but Do still
// collapses concurrent calls for the same key.
type Cache[V any] struct {
	mu       sync.RWMutex
	data     map[string]V
	order    []string // insertion order, oldest first; used for eviction
	capacity int      // 0 means unbounded
	useCache bool

	group  singleflight.Group
	hits   int
	misses int
}

// New creates a cache holding at most capacity entries.
// A capacity of zero or less means unbounded.
func New[V any](capacity int) *Cache[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[V]{
		data:     make(map[string]V),
		capacity: capacity,
		useCache: true,
	}
}

// Disabled creates a cache that stores nothing.
func Disabled[V any]() *Cache[V] {
	return &Cache[V]{data: make(map[string]V)}
}

// Get returns the value stored for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	if !c.useCache {
		var zero V
		return zero, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores v under key, evicting the oldest entry when the cache is full.
func (c *Cache[V]) Set(key string, v V) {
	if !c.useCache {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists {
		c.order = append(c.order, key)
	}
	c.data[key] = v
	for c.capacity > 0 && len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
}

// Do returns the value for key, calling fn to compute it on a miss.
// Errors are not cached.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()

		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns the number of hits and misses seen by Do.
func (c *Cache[V]) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// IsEnabled reports whether the cache stores entries.
func (c *Cache[V]) IsEnabled() bool {
	return c.useCache
}
