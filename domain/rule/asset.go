package rule

import "fmt"

// Asset is the stock content of a prebuilt rule at one version, as shipped in
// a prebuilt rule package. Every shipped version is retained so that the
// version a user installed can serve as the base of a later upgrade.
type Asset struct {
	// RuleID is the stable signature id shared by every version of the rule.
	RuleID string `json:"rule_id"`

	// Version is the asset version.
	Version int `json:"version"`

	// Params holds every field of the asset, rule_id and version included.
	Params Params `json:"params"`
}

// NewAsset builds an asset from canonical params, validating the required
// rule_id, version and type fields.
func NewAsset(params Params) (*Asset, error) {
	ruleID := params.String(FieldRuleID)
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule_id is required", ErrInvalidAsset)
	}
	version := params.Int(FieldVersion)
	if version <= 0 {
		return nil, fmt.Errorf("%w: rule %s: version must be a positive integer", ErrInvalidAsset, ruleID)
	}
	t := Type(params.String(FieldType))
	if !t.Valid() {
		return nil, fmt.Errorf("%w: rule %s: %w %q", ErrInvalidAsset, ruleID, ErrUnknownType, t)
	}
	if params.String(FieldName) == "" {
		return nil, fmt.Errorf("%w: rule %s: name is required", ErrInvalidAsset, ruleID)
	}
	return &Asset{
		RuleID:  ruleID,
		Version: version,
		Params:  params,
	}, nil
}

// Type returns the asset rule type.
func (a *Asset) Type() Type {
	return Type(a.Params.String(FieldType))
}

// Name returns the asset rule name.
func (a *Asset) Name() string {
	return a.Params.String(FieldName)
}

// Tags returns the asset tags.
func (a *Asset) Tags() []string {
	return a.Params.Strings(FieldTags)
}

// Key identifies an asset version.
func (a *Asset) Key() VersionSpecifier {
	return VersionSpecifier{RuleID: a.RuleID, Version: a.Version}
}

// VersionSpecifier identifies a rule_id at a version.
type VersionSpecifier struct {
	RuleID  string `json:"rule_id"`
	Version int    `json:"version"`
}

// String formats the specifier as rule_id@version.
func (v VersionSpecifier) String() string {
	return fmt.Sprintf("%s@%d", v.RuleID, v.Version)
}
