package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores city suggestion lists keyed by normalized query.
// Get returns (nil, false, nil) on a miss; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, value []string, ttl time.Duration) error
}

// DefaultMaxEntries bounds an InMemoryCache built by NewInMemoryCache.
const DefaultMaxEntries = 10000

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access and whenever a Set finds the cache full; if it is
// still full, the entry closest to expiry makes room. Safe for concurrent use.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]cacheEntry
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	value     []string
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache holding at most DefaultMaxEntries lists.
func NewInMemoryCache() *InMemoryCache {
	return NewBoundedInMemoryCache(DefaultMaxEntries)
}

// NewBoundedInMemoryCache creates an in-memory cache holding at most maxEntries lists
// (DefaultMaxEntries if <= 0).
func NewBoundedInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryCache{
		data:       make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached list for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return append([]string(nil), entry.value...), true, nil
}

// Set stores a copy of value for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.makeRoomLocked(now)
	}
	c.data[key] = cacheEntry{
		value:     append([]string(nil), value...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// makeRoomLocked drops expired entries, then the soonest-expiring one if none had expired.
func (c *InMemoryCache) makeRoomLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(c.data) >= c.maxEntries && oldestKey != "" {
		delete(c.data, oldestKey)
	}
}
