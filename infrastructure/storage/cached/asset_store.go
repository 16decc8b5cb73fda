// Package cached wraps a rule.AssetStore with a read-through cache.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/ruleup/domain/cache"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// AssetStore caches asset lookups by (rule_id, version). Versioned assets are
// immutable once shipped so entries are only dropped on Save, Delete or
// Invalidate.
type AssetStore struct {
	rule.AssetStore
	cache cache.Cache
	ttl   time.Duration
}

// NewAssetStore wraps store with c. A zero ttl keeps entries until invalidated.
func NewAssetStore(store rule.AssetStore, c cache.Cache, ttl time.Duration) *AssetStore {
	return &AssetStore{AssetStore: store, cache: c, ttl: ttl}
}

// Get returns a cached asset or loads it from the underlying store. Cache
// failures fall through to the store.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	key := cache.AssetKey(ruleID, version)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var a rule.Asset
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
	}

	a, err := s.AssetStore.Get(ctx, ruleID, version)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		_ = s.cache.Set(ctx, key, data, s.ttl)
	}
	return a, nil
}

// Save stores assets and drops their cache entries.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	if err := s.AssetStore.Save(ctx, assets...); err != nil {
		return err
	}
	var errs []error
	for _, a := range assets {
		if err := s.cache.Delete(ctx, cache.AssetKey(a.RuleID, a.Version)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes a rule_id and empties the cache.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	if err := s.AssetStore.Delete(ctx, ruleID); err != nil {
		return err
	}
	return s.cache.Clear(ctx)
}

// Invalidate empties the cache.
func (s *AssetStore) Invalidate(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

var _ rule.AssetStore = (*AssetStore)(nil)
