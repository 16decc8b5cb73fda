package upgrade

import (
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// ResolveField returns the value to install for one field.
func ResolveField(ruleID, field string, fd diff.FieldDiff, sel FieldSelection) (any, error) {
	switch sel.PickVersion {
	case PickBase:
		if !fd.HasBaseVersion {
			return nil, &MissingBaseVersionError{Field: field, RuleID: ruleID}
		}
		return fd.Base, nil
	case PickCurrent:
		return fd.Current, nil
	case PickTarget:
		return fd.Target, nil
	case PickMerged:
		if fd.MergeOutcome == diff.MergeConflict {
			return nil, &NonSolvableConflictError{Field: field, RuleID: ruleID}
		}
		return fd.MergedVersion, nil
	case PickResolved:
		if !sel.HasValue() {
			return nil, fmt.Errorf("%w: resolved_value is required for field %s with pick_version RESOLVED", ErrInvalidRequest, field)
		}
		return rule.Canonical(sel.ResolvedValue), nil
	default:
		return nil, fmt.Errorf("%w: unknown pick_version %q for field %s", ErrInvalidRequest, sel.PickVersion, field)
	}
}

// Resolve picks a value for every field of the diff. The first failing field,
// in schema order, fails the whole rule.
func Resolve(ruleID string, d *diff.RuleDiff, chain Chain) (map[string]any, error) {
	out := make(map[string]any, len(d.Order))
	for _, f := range d.Order {
		v, err := ResolveField(ruleID, f, d.Fields[f], chain.For(f))
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// ValidateChain checks pick versions and that every field override names an
// upgradable field of the rule type. RESOLVED is only accepted per field.
func ValidateChain(t rule.Type, chain Chain) error {
	for _, p := range []PickVersion{chain.Global, chain.Rule} {
		if p == "" {
			continue
		}
		if !p.Valid() {
			return fmt.Errorf("%w: unknown pick_version %q", ErrInvalidRequest, p)
		}
		if p == PickResolved {
			return fmt.Errorf("%w: pick_version RESOLVED is only allowed for individual fields", ErrInvalidRequest)
		}
	}

	for _, name := range sortedFields(chain.Fields) {
		if !rule.IsUpgradableField(t, name) {
			return &InvalidFieldForTypeError{Field: name, Type: string(t)}
		}
		if err := validateSelection(name, chain.Fields[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateSelection(field string, sel FieldSelection) error {
	if sel.PickVersion != "" && !sel.PickVersion.Valid() {
		return fmt.Errorf("%w: unknown pick_version %q for field %s", ErrInvalidRequest, sel.PickVersion, field)
	}
	if sel.PickVersion == PickResolved && !sel.HasValue() {
		return fmt.Errorf("%w: resolved_value is required for field %s with pick_version RESOLVED", ErrInvalidRequest, field)
	}
	return nil
}

// MergeInput carries the three rule versions and the pick chain of one rule.
type MergeInput struct {
	// Base is the asset at the installed version; nil when missing.
	Base    *rule.Asset
	Current *rule.Rule
	Target  *rule.Asset
	Chain   Chain
}

// MergeResult is the outcome of merging one rule.
type MergeResult struct {
	// Rule is the upgraded rule, not yet persisted.
	Rule *rule.Rule

	// Diff is the diff the merge was computed from.
	Diff *diff.RuleDiff

	// TypeChanged is true when the target changed the rule type.
	TypeChanged bool
}

// Merge computes the upgraded form of a rule.
//
// Fields outside the target type's upgradable set are kept from the
// installed rule. The installed version always becomes the target version and
// the revision is incremented. A rule type change is only accepted when every
// pick version is TARGET, in which case the target asset is installed as is.
func Merge(in MergeInput) (*MergeResult, error) {
	ruleID := in.Current.RuleID
	targetType := in.Target.Type()

	if err := ValidateChain(targetType, in.Chain); err != nil {
		return nil, err
	}

	versions := diff.RuleVersions(in.Base, in.Current, in.Target)
	d := diff.CalculateForType(versions, targetType)

	out := in.Current.Clone()
	out.Revision = in.Current.Revision + 1

	typeChanged := in.Current.Type() != targetType
	if typeChanged {
		if !in.Chain.AllTarget() {
			return nil, &RuleTypeChangeError{RuleID: ruleID}
		}
		out.Params = in.Target.Params.Clone()
	} else {
		resolved, err := Resolve(ruleID, d, in.Chain)
		if err != nil {
			return nil, err
		}
		params := in.Current.Params.Clone()
		for _, f := range d.Order {
			if v := resolved[f]; v != nil {
				params[f] = v
			} else {
				delete(params, f)
			}
		}
		out.Params = params
	}

	out.Params[rule.FieldRuleID] = ruleID
	out.Params[rule.FieldVersion] = float64(in.Target.Version)
	out.Source = rule.CalculateSource(out.Params, in.Target, true)

	return &MergeResult{Rule: out, Diff: d, TypeChanged: typeChanged}, nil
}
