package upgrade

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Mode selects which rules a perform request applies to.
type Mode string

// Modes.
const (
	ModeAllRules      Mode = "ALL_RULES"
	ModeSpecificRules Mode = "SPECIFIC_RULES"
)

// ReviewRequest asks for a dry diff of upgradable rules. Empty RuleIDs means
// every installed prebuilt rule with a newer asset. Requested ids that are
// not upgradable are listed in ReviewResponse.Skipped.
type ReviewRequest struct {
	RuleIDs []string `json:"rule_ids,omitempty"`
}

// RuleSpec describes the upgrade of one rule in SPECIFIC_RULES mode.
type RuleSpec struct {
	RuleID string `json:"rule_id"`

	// Revision is the installed revision the caller reviewed.
	Revision int `json:"revision"`

	// Version is the target asset version the caller reviewed.
	Version int `json:"version"`

	PickVersion PickVersion               `json:"pick_version,omitempty"`
	Fields      map[string]FieldSelection `json:"fields,omitempty"`
}

// PerformRequest asks to upgrade rules.
type PerformRequest struct {
	Mode        Mode        `json:"mode"`
	PickVersion PickVersion `json:"pick_version,omitempty"`
	Rules       []RuleSpec  `json:"rules,omitempty"`

	// DryRun computes every upgrade without persisting.
	DryRun bool `json:"dry_run,omitempty"`
}

// Validate checks request-level constraints. Per-rule problems are reported
// in the response instead.
func (r PerformRequest) Validate() error {
	if r.PickVersion != "" {
		if !r.PickVersion.Valid() {
			return fmt.Errorf("%w: unknown pick_version %q", ErrInvalidRequest, r.PickVersion)
		}
		if r.PickVersion == PickResolved {
			return fmt.Errorf("%w: pick_version RESOLVED is only allowed for individual fields", ErrInvalidRequest)
		}
	}

	switch r.Mode {
	case ModeAllRules:
		if len(r.Rules) > 0 {
			return fmt.Errorf("%w: rules must be empty in %s mode", ErrInvalidRequest, ModeAllRules)
		}
	case ModeSpecificRules:
		if len(r.Rules) == 0 {
			return fmt.Errorf("%w: rules are required in %s mode", ErrInvalidRequest, ModeSpecificRules)
		}
		seen := make(map[string]struct{}, len(r.Rules))
		for _, spec := range r.Rules {
			if spec.RuleID == "" {
				return fmt.Errorf("%w: rule_id is required", ErrInvalidRequest)
			}
			if _, dup := seen[spec.RuleID]; dup {
				return fmt.Errorf("%w: duplicate rule_id %s", ErrInvalidRequest, spec.RuleID)
			}
			seen[spec.RuleID] = struct{}{}
			for _, field := range sortedFields(spec.Fields) {
				if err := validateSelection(field, spec.Fields[field]); err != nil {
					return fmt.Errorf("rule %s: %w", spec.RuleID, err)
				}
			}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	return nil
}

func sortedFields(fields map[string]FieldSelection) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain returns the pick chain of a rule spec.
func (r PerformRequest) Chain(spec RuleSpec) Chain {
	return Chain{Global: r.PickVersion, Rule: spec.PickVersion, Fields: spec.Fields}
}

// RuleUpgradeInfo is the review of one upgradable rule.
type RuleUpgradeInfo struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	Revision    int            `json:"revision"`
	CurrentRule *rule.Rule     `json:"current_rule"`
	TargetRule  *rule.Asset    `json:"target_rule"`
	Diff        *diff.RuleDiff `json:"diff"`
}

// ReviewStats aggregates a review over rules.
type ReviewStats struct {
	NumRulesToUpgradeTotal           int      `json:"num_rules_to_upgrade_total"`
	NumRulesWithConflicts            int      `json:"num_rules_with_conflicts"`
	NumRulesWithNonSolvableConflicts int      `json:"num_rules_with_non_solvable_conflicts"`
	Tags                             []string `json:"tags"`
}

// ReviewResponse lists upgradable rules with their diffs.
type ReviewResponse struct {
	Rules []RuleUpgradeInfo `json:"rules"`
	Stats ReviewStats       `json:"stats"`

	// Skipped holds requested rule ids that were not reviewed, either
	// RULE_NOT_INSTALLED or RULE_UP_TO_DATE.
	Skipped []batch.Skipped `json:"skipped,omitempty"`
}
