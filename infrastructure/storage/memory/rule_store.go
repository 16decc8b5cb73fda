// Package memory provides in-memory implementations of the rule, asset and
// cache interfaces. Values are stored as JSON so callers never share state
// with the store.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// RuleStore is an in-memory implementation of rule.Store.
type RuleStore struct {
	rules    map[string][]byte
	byRuleID map[string]string
	mu       sync.RWMutex
}

// NewRuleStore creates a new in-memory rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{
		rules:    make(map[string][]byte),
		byRuleID: make(map[string]string),
	}
}

// Create persists a newly installed rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return rule.ErrRuleExists
	}
	if _, exists := s.byRuleID[r.RuleID]; exists {
		return rule.ErrRuleExists
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.rules[r.ID] = data
	s.byRuleID[r.RuleID] = r.ID
	return nil
}

// Get retrieves a rule by storage ID.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, rule.ErrInvalidRuleID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(id)
}

// GetByRuleID retrieves a rule by signature id.
func (s *RuleStore) GetByRuleID(ctx context.Context, ruleID string) (*rule.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ruleID == "" {
		return nil, rule.ErrInvalidRuleID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRuleID[ruleID]
	if !ok {
		return nil, rule.ErrRuleNotFound
	}
	return s.load(id)
}

// Update replaces a rule when the stored revision equals expectedRevision.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule, expectedRevision int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		return rule.ErrInvalidRuleID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(r.ID)
	if err != nil {
		return err
	}
	if stored.Revision != expectedRevision {
		return rule.ErrRevisionConflict
	}
	if stored.RuleID != r.RuleID {
		if _, taken := s.byRuleID[r.RuleID]; taken {
			return rule.ErrRuleExists
		}
		delete(s.byRuleID, stored.RuleID)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.rules[r.ID] = data
	s.byRuleID[r.RuleID] = r.ID
	return nil
}

// Delete removes a rule by storage ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(id)
	if err != nil {
		return err
	}
	delete(s.rules, id)
	delete(s.byRuleID, stored.RuleID)
	return nil
}

// List returns rules matching the filter, ordered by rule_id.
func (s *RuleStore) List(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ruleIDs := make([]string, 0, len(s.byRuleID))
	for rid := range s.byRuleID {
		ruleIDs = append(ruleIDs, rid)
	}
	sort.Strings(ruleIDs)

	var out []*rule.Rule
	for _, rid := range ruleIDs {
		r, err := s.load(s.byRuleID[rid])
		if err != nil {
			return nil, err
		}
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return paginate(out, filter.Offset, filter.Limit), nil
}

// Count returns the number of rules matching the filter.
func (s *RuleStore) Count(ctx context.Context, filter rule.ListFilter) (int64, error) {
	filter.Limit, filter.Offset = 0, 0
	rules, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(rules)), nil
}

// Len returns the number of stored rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// load must be called with the lock held.
func (s *RuleStore) load(id string) (*rule.Rule, error) {
	data, ok := s.rules[id]
	if !ok {
		return nil, rule.ErrRuleNotFound
	}
	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ rule.Store = (*RuleStore)(nil)
