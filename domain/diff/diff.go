// Package diff provides the three-way field comparison of prebuilt rules:
// per-field version triples, the classifier deciding whether a stock update
// can be applied over a user's customization, and rule-level aggregates.
package diff

import "github.com/felixgeelhaar/ruleup/domain/rule"

type missingVersion struct{}

// Missing returns the sentinel marking a base version that does not exist
// because no asset was retained for the version the user installed.
func Missing() any {
	return missingVersion{}
}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingVersion)
	return ok
}

// ThreeVersions groups the base, current and target state of a value.
// Base may be the Missing sentinel.
type ThreeVersions[T any] struct {
	Base    any `json:"base_version"`
	Current T   `json:"current_version"`
	Target  T   `json:"target_version"`
}

// HasBase reports whether the base version exists.
func (v ThreeVersions[T]) HasBase() bool {
	return !IsMissing(v.Base)
}

// RuleVersions builds the object-level triple of a rule. A nil base asset
// yields the Missing sentinel.
func RuleVersions(base *rule.Asset, current *rule.Rule, target *rule.Asset) ThreeVersions[rule.Params] {
	v := ThreeVersions[rule.Params]{
		Base:    missingVersion{},
		Current: current.Params,
		Target:  target.Params,
	}
	if base != nil {
		v.Base = base.Params
	}
	return v
}

// Extract projects the three object versions onto a single field. A field
// absent from an object yields nil; a missing base stays the Missing sentinel.
func Extract(field string, v ThreeVersions[rule.Params]) ThreeVersions[any] {
	out := ThreeVersions[any]{
		Base:    missingVersion{},
		Current: v.Current.Get(field),
		Target:  v.Target.Get(field),
	}
	if base, ok := v.Base.(rule.Params); ok {
		out.Base = base.Get(field)
	}
	return out
}
