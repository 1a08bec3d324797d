// Package cache provides a bounded, TTL-aware in-process cache used to
// take read pressure off the Document Store for hot, rarely-changing
// lookups (narrative fragments). Adapted from the reference
// cache module's (modules/cache/memory.go) expiring-item shape, but
// swaps its reject-when-full eviction policy for golang-lru's
// size-bounded LRU eviction — a better fit for a fixed-capacity
// read-through cache than rejecting new entries outright.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value      V
	expiration time.Time
}

// TTLCache is a size-bounded cache where entries also expire after a
// fixed time-to-live, whichever comes first.
type TTLCache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, entry[V]]
}

// New constructs a TTLCache holding at most size entries.
func New[K comparable, V any](size int) (*TTLCache[K, V], error) {
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: c}, nil
}

// Get returns the cached value for key, or the zero value and false if
// absent or expired. An expired entry is evicted on read.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiration.IsZero() && time.Now().After(e.expiration) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given ttl. A zero ttl means the
// entry never expires on its own (still subject to LRU eviction).
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry[V]{value: value, expiration: exp})
}

// Delete removes key from the cache, if present.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len reports the number of entries currently cached, including any not
// yet lazily evicted for having expired.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
