package upgrade

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrRuleTypeChange indicates a target changes the rule type without TARGET picks.
	ErrRuleTypeChange = errors.New("rule type change")

	// ErrInvalidFieldForType indicates a field override outside the type's upgradable fields.
	ErrInvalidFieldForType = errors.New("invalid field for rule type")

	// ErrNonSolvableConflict indicates MERGED was picked for a conflicting field.
	ErrNonSolvableConflict = errors.New("non-solvable conflict")

	// ErrRevisionMismatch indicates the caller's expected revision is stale.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrMissingBaseVersion indicates BASE was picked for a rule without a base asset.
	ErrMissingBaseVersion = errors.New("missing base version")

	// ErrRuleNotFound indicates the rule is not installed as a prebuilt rule.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAssetNotFound indicates no asset exists at the requested version.
	ErrAssetNotFound = errors.New("rule asset not found")

	// ErrInvalidRequest indicates a malformed upgrade or install request.
	ErrInvalidRequest = errors.New("invalid request")
)

// RuleTypeChangeError fails an upgrade whose target has another rule type
// while some pick version is not TARGET.
type RuleTypeChangeError struct {
	RuleID string
}

func (e *RuleTypeChangeError) Error() string {
	return fmt.Sprintf("Rule update for rule %s has a rule type change. All 'pick_version' values for rule must match 'TARGET'", e.RuleID)
}

func (e *RuleTypeChangeError) Unwrap() error { return ErrRuleTypeChange }

// InvalidFieldForTypeError fails an upgrade whose field override names a
// field that is not upgradable for the target rule type.
type InvalidFieldForTypeError struct {
	Field string
	Type  string
}

func (e *InvalidFieldForTypeError) Error() string {
	return fmt.Sprintf("%s is not a valid upgradeable field for type '%s'", e.Field, e.Type)
}

func (e *InvalidFieldForTypeError) Unwrap() error { return ErrInvalidFieldForType }

// NonSolvableConflictError fails an upgrade where MERGED was picked for a
// field whose current and target values both diverge from base.
type NonSolvableConflictError struct {
	Field  string
	RuleID string
}

func (e *NonSolvableConflictError) Error() string {
	return fmt.Sprintf("Automatic merge calculation for field '%s' in rule of rule_id %s resulted in a conflict. Please resolve the conflict manually or choose another value for 'pick_version'.", e.Field, e.RuleID)
}

func (e *NonSolvableConflictError) Unwrap() error { return ErrNonSolvableConflict }

// RevisionMismatchError fails an upgrade whose expected revision is stale.
type RevisionMismatchError struct {
	RuleID   string
	Expected int
	Actual   int
}

func (e *RevisionMismatchError) Error() string {
	return fmt.Sprintf("Revision mismatch for rule_id %s: expected %d, got %d", e.RuleID, e.Expected, e.Actual)
}

func (e *RevisionMismatchError) Unwrap() error { return ErrRevisionMismatch }

// MissingBaseVersionError fails an upgrade picking BASE for a field of a rule
// whose base asset is missing.
type MissingBaseVersionError struct {
	Field  string
	RuleID string
}

func (e *MissingBaseVersionError) Error() string {
	return fmt.Sprintf("Cannot pick BASE version for field '%s' in rule of rule_id %s: base version is missing", e.Field, e.RuleID)
}

func (e *MissingBaseVersionError) Unwrap() error { return ErrMissingBaseVersion }

// RuleNotFoundError fails an upgrade of a rule_id that is not installed.
type RuleNotFoundError struct {
	RuleID string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("Rule with rule_id %s not found", e.RuleID)
}

func (e *RuleNotFoundError) Unwrap() error { return ErrRuleNotFound }

// AssetNotFoundError fails an upgrade or install naming a version that no
// asset carries.
type AssetNotFoundError struct {
	RuleID  string
	Version int
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("Rule with rule_id %s and version %d not found", e.RuleID, e.Version)
}

func (e *AssetNotFoundError) Unwrap() error { return ErrAssetNotFound }
