// Package badger provides a BadgerDB-backed asset cache.
package badger

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config configures BadgerDB storage.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the database in memory.
	InMemory bool

	SyncWrites bool

	// GCDiscardRatio is the value log discard ratio for GC.
	GCDiscardRatio float64

	// GCInterval is the interval between GC runs; zero disables GC.
	GCInterval time.Duration

	// KeyPrefix is added to all keys.
	KeyPrefix string

	// Logger is the badger logger; nil silences badger.
	Logger badger.Logger
}

// Option configures BadgerDB storage.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithInMemory enables in-memory storage.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithGCInterval sets the GC interval.
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) {
		c.GCInterval = d
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		GCDiscardRatio: 0.5,
		GCInterval:     5 * time.Minute,
		KeyPrefix:      "ruleup:",
	}
}

// ErrOpenFailed is returned when the database cannot be opened.
var ErrOpenFailed = errors.New("badger: open failed")

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}
	return db, nil
}
