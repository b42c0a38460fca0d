package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds the memory cache when no size is configured
const DefaultMaxEntries = 1024

// MemoryCache is an in-process expiring LRU cache.
// The TTL given at construction caps every entry; a shorter ttl passed to Set wins.
type MemoryCache struct {
	cache  *lru.LRU[string, memoryEntry]
	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryCache creates a memory cache holding at most maxEntries values for ttl each
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
	}
}

// Get returns a copy of the cached value
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	entry, ok := c.cache.Get(key)
	if ok && entry.expired(time.Now()) {
		c.cache.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A non-positive ttl keeps the cache-wide TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.cache.Add(key, entry)
	return nil
}

// InvalidateAll purges every entry
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.cache.Purge()
	return nil
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

// Stats returns hit and miss counts since construction
func (c *MemoryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases resources
func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}
