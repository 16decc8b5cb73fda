package rule

import "context"

// Store defines the interface for installed rule persistence.
// Implementations may be in-memory, SQLite, PostgreSQL or any other backend.
type Store interface {
	// Create persists a newly installed rule. Returns ErrRuleExists when a
	// rule with the same ID or rule_id is already installed.
	Create(ctx context.Context, r *Rule) error

	// Get retrieves a rule by storage ID.
	Get(ctx context.Context, id string) (*Rule, error)

	// GetByRuleID retrieves a rule by its signature id.
	GetByRuleID(ctx context.Context, ruleID string) (*Rule, error)

	// Update replaces an installed rule. The stored revision must equal
	// expectedRevision, otherwise ErrRevisionConflict is returned.
	Update(ctx context.Context, r *Rule, expectedRevision int) error

	// Delete removes a rule by storage ID.
	Delete(ctx context.Context, id string) error

	// List returns rules matching the filter, ordered by rule_id.
	List(ctx context.Context, filter ListFilter) ([]*Rule, error)

	// Count returns the number of rules matching the filter.
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// ListFilter specifies criteria for listing installed rules.
type ListFilter struct {
	// RuleIDs restricts the result to these signature ids (empty means all).
	RuleIDs []string

	// PrebuiltOnly restricts the result to rules with an external source.
	PrebuiltOnly bool

	// Limit is the maximum number of rules to return (0 = no limit).
	Limit int

	// Offset is the number of rules to skip for pagination.
	Offset int
}

// Matches reports whether r satisfies the filter, ignoring Limit and Offset.
func (f ListFilter) Matches(r *Rule) bool {
	if f.PrebuiltOnly && !r.IsPrebuilt() {
		return false
	}
	if len(f.RuleIDs) == 0 {
		return true
	}
	for _, id := range f.RuleIDs {
		if id == r.RuleID {
			return true
		}
	}
	return false
}

// AssetStore defines the interface for prebuilt rule asset persistence.
// Every version of every asset is retained.
type AssetStore interface {
	// Save stores assets. Saving an existing (rule_id, version) pair
	// overwrites it.
	Save(ctx context.Context, assets ...*Asset) error

	// Get retrieves the asset for a rule_id at a version.
	Get(ctx context.Context, ruleID string, version int) (*Asset, error)

	// Latest returns the highest version of each requested rule_id, or of
	// every rule_id when none are given, ordered by rule_id. Unknown
	// rule_ids are omitted.
	Latest(ctx context.Context, ruleIDs ...string) ([]*Asset, error)

	// Versions returns the known versions of a rule_id in ascending order.
	Versions(ctx context.Context, ruleID string) ([]int, error)

	// Count returns the number of distinct rule_ids.
	Count(ctx context.Context) (int64, error)

	// Delete removes every version of a rule_id.
	Delete(ctx context.Context, ruleID string) error
}
