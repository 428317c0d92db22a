package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded LRU with per-entry TTL. It is constructed once at
// startup and passed by handle to the services that need it; there are no
// package-level cache instances.
type Cache[V any] struct {
	lru  *expirable.LRU[string, V]
	hits Counter
	miss Counter
}

// Counter is the minimal metrics hook a cache needs. A nil Counter is
// allowed and ignored.
type Counter interface {
	Inc()
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithCounters attaches hit/miss counters.
func WithCounters[V any](hits, misses Counter) Option[V] {
	return func(c *Cache[V]) {
		c.hits = hits
		c.miss = misses
	}
}

// New creates a cache holding at most size entries, each expiring ttl
// after insertion. size <= 0 falls back to 128; ttl <= 0 means no expiry.
func New[V any](size int, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	if size <= 0 {
		size = 128
	}
	c := &Cache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		if c.hits != nil {
			c.hits.Inc()
		}
	} else if c.miss != nil {
		c.miss.Inc()
	}
	return v, ok
}

// Set stores value under key, evicting the oldest entry if full.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete removes key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry. Used after ingest mutations invalidate derived
// results.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
