package rendercache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a bounded in-process cache with least-recently-used
// eviction and a fixed TTL. It is the default backend for a single
// instance.
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryCache creates a memory cache holding at most capacity entries,
// each expiring after ttl. A zero ttl disables expiry; a non-positive
// capacity falls back to 128 entries.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, []byte](capacity, nil, ttl),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := c.lru.Get(key)
	return data, ok, nil
}

// Set implements Cache. The per-call ttl is ignored; the TTL fixed at
// construction applies to every entry.
func (c *MemoryCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.lru.Add(key, data)
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Ensure MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
