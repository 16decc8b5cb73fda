package memory

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/ruleup/domain/cache"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
	accessAt  time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is an in-memory implementation of cache.Cache with TTL expiry and
// least-recently-used eviction once MaxSize entries are held.
type Cache struct {
	entries map[string]*cacheEntry
	maxSize int
	now     func() time.Time
	mu      sync.Mutex
	hits    int64
	misses  int64
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(size int) CacheOption {
	return func(c *Cache) {
		c.maxSize = size
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new in-memory cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		maxSize: 4096,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a copy of a cached value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.entries[key]
	if !ok || entry.expired(now) {
		delete(c.entries, key)
		c.misses++
		return nil, false, nil
	}

	entry.accessAt = now
	c.hits++
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{value: append([]byte(nil), value...), accessAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Clear removes all entries from the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cache.Stats{
		Hits:   c.hits,
		Misses: c.misses,
		Size:   int64(len(c.entries)),
	}
}

// evictLRU must be called with the lock held.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.accessAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)
