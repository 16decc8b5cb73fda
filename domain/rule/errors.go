package rule

import "errors"

// Domain errors for rule and asset operations.
var (
	// ErrRuleNotFound is returned when an installed rule does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when installing a rule whose rule_id is already installed.
	ErrRuleExists = errors.New("rule already exists")

	// ErrInvalidRuleID is returned when a rule ID or rule_id is empty.
	ErrInvalidRuleID = errors.New("invalid rule ID")

	// ErrRevisionConflict is returned when an update carries a stale revision.
	ErrRevisionConflict = errors.New("rule revision conflict")

	// ErrAssetNotFound is returned when no asset exists for a rule_id and version.
	ErrAssetNotFound = errors.New("rule asset not found")

	// ErrInvalidAsset is returned when an asset is missing rule_id, version or type.
	ErrInvalidAsset = errors.New("invalid rule asset")

	// ErrInvalidParams is returned when rule params cannot be normalized.
	ErrInvalidParams = errors.New("invalid rule params")

	// ErrUnknownType is returned for an unrecognized rule type.
	ErrUnknownType = errors.New("unknown rule type")

	// ErrConnectionFailed is returned when connection to the store backend fails.
	ErrConnectionFailed = errors.New("store connection failed")

	// ErrOperationTimeout is returned when a store operation times out.
	ErrOperationTimeout = errors.New("store operation timeout")
)
