package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/ruleup/domain/cache"
)

// Cache is a Redis-backed implementation of cache.Cache.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCache connects to Redis and verifies the connection.
func NewCache(cfg Config, opts ...ConfigOption) (*Cache, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(cache.ErrConnectionFailed, err)
	}

	return NewCacheFromClient(client, cfg.KeyPrefix), nil
}

// NewCacheFromClient creates a cache from an existing Redis client.
func NewCacheFromClient(client *redis.Client, keyPrefix string) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (c *Cache) prefixKey(key string) string {
	return c.keyPrefix + "cache:" + key
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := c.client.Get(ctx, c.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, err
	}

	c.hits.Add(1)
	return result, true, nil
}

// Set stores a value in the cache. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return cache.ErrInvalidKey
	}
	return c.client.Set(ctx, c.prefixKey(key), value, ttl).Err()
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefixKey(key)).Err()
}

// Clear removes all entries under the cache prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"cache:*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Stats returns hit and miss counts. Size is not tracked.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)
