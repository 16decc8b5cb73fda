package badger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/ruleup/domain/cache"
)

// Cache is a BadgerDB-backed implementation of cache.Cache.
type Cache struct {
	db        *badger.DB
	keyPrefix string
	hits      atomic.Int64
	misses    atomic.Int64
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// NewCache opens a BadgerDB cache.
func NewCache(cfg Config, opts ...Option) (*Cache, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	c := NewCacheFromDB(db, cfg.KeyPrefix)
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return c, nil
}

// NewCacheFromDB creates a cache from an existing BadgerDB database.
func NewCacheFromDB(db *badger.DB, keyPrefix string) *Cache {
	return &Cache{
		db:        db,
		keyPrefix: keyPrefix,
		gcStop:    make(chan struct{}),
	}
}

func (c *Cache) startGC(interval time.Duration, discardRatio float64) {
	c.gcWg.Add(1)
	go func() {
		defer c.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.gcStop:
				return
			case <-ticker.C:
				for c.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

func (c *Cache) prefix() []byte {
	return []byte(c.keyPrefix + "cache:")
}

func (c *Cache) prefixKey(key string) []byte {
	return append(c.prefix(), key...)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.prefixKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	c.hits.Add(1)
	return value, true, nil
}

// Set stores a value in the cache. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(c.prefixKey(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.prefixKey(key))
	})
}

// Clear removes all entries with the cache prefix.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.DropPrefix(c.prefix())
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	var size int64
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = c.prefix()

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			size++
		}
		return nil
	})

	return cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}

// Close stops GC and closes the database.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.gcStop)
		c.gcWg.Wait()
		err = c.db.Close()
	})
	return err
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)
