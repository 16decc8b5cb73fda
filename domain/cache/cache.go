// Package cache provides the byte cache used to memoize prebuilt rule asset
// lookups.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores serialized assets. Implementations may be in-memory, Redis,
// Badger or any other backend.
type Cache interface {
	// Get returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes all entries. Called after a package update.
	Clear(ctx context.Context) error
}

// Stats provides cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// StatsProvider is an optional interface for caches that support statistics.
type StatsProvider interface {
	Stats() Stats
}

// AssetKey is the key of one asset version.
func AssetKey(ruleID string, version int) string {
	return fmt.Sprintf("asset:%s@%d", ruleID, version)
}

// LatestKey is the key of a rule's latest asset.
func LatestKey(ruleID string) string {
	return "latest:" + ruleID
}
