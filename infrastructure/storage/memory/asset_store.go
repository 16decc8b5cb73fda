package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// AssetStore is an in-memory implementation of rule.AssetStore.
type AssetStore struct {
	// assets maps rule_id to version to the JSON encoded asset.
	assets map[string]map[int][]byte
	mu     sync.RWMutex
}

// NewAssetStore creates a new in-memory asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string]map[int][]byte)}
}

// Save stores assets, overwriting existing versions.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := make([][]byte, len(assets))
	for i, a := range assets {
		if a.RuleID == "" || a.Version <= 0 {
			return rule.ErrInvalidAsset
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range assets {
		versions, ok := s.assets[a.RuleID]
		if !ok {
			versions = make(map[int][]byte)
			s.assets[a.RuleID] = versions
		}
		versions[a.Version] = encoded[i]
	}
	return nil
}

// Get retrieves an asset version.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.assets[ruleID][version]
	if !ok {
		return nil, rule.ErrAssetNotFound
	}
	return decodeAsset(data)
}

// Latest returns the highest version of each requested rule_id.
func (s *AssetStore) Latest(ctx context.Context, ruleIDs ...string) ([]*rule.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ruleIDs) == 0 {
		for rid := range s.assets {
			ruleIDs = append(ruleIDs, rid)
		}
	} else {
		ruleIDs = append([]string(nil), ruleIDs...)
	}
	sort.Strings(ruleIDs)

	out := make([]*rule.Asset, 0, len(ruleIDs))
	var prev string
	for i, rid := range ruleIDs {
		if i > 0 && rid == prev {
			continue
		}
		prev = rid

		versions, ok := s.assets[rid]
		if !ok {
			continue
		}
		latest := 0
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		a, err := decodeAsset(versions[latest])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Versions returns the known versions of a rule_id in ascending order.
func (s *AssetStore) Versions(ctx context.Context, ruleID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int, 0, len(s.assets[ruleID]))
	for v := range s.assets[ruleID] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// Count returns the number of distinct rule_ids.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.assets)), nil
}

// Delete removes every version of a rule_id.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[ruleID]; !ok {
		return rule.ErrAssetNotFound
	}
	delete(s.assets, ruleID)
	return nil
}

func decodeAsset(data []byte) (*rule.Asset, error) {
	var a rule.Asset
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ rule.AssetStore = (*AssetStore)(nil)
