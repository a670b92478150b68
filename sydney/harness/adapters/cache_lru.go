package adapters

import (
	"context"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"

	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a bounded cache whose entries also expire after their TTL.
type LRUCache struct {
	entries *lru.Cache
	now     func() time.Time
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// NewLRUCache creates a new LRU cache with the specified capacity.
func NewLRUCache(capacity int) (*LRUCache, error) {
	entries, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{entries: entries, now: time.Now}, nil
}

// Get retrieves a value, dropping it when expired.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value. A non-positive TTL keeps the entry until evicted.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	entry := cacheEntry{value: value}
	if ttlSeconds > 0 {
		entry.expires = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	c.entries.Add(key, entry)
	return nil
}

func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len reports the number of cached entries, expired ones included.
func (c *LRUCache) Len() int { return c.entries.Len() }

// Ensure LRUCache implements the Cache interface.
var _ ports.Cache = (*LRUCache)(nil)
