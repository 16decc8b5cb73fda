package rule

import "time"

// Rule is an installed detection rule.
type Rule struct {
	// ID is the storage identifier of the installed rule.
	ID string `json:"id"`

	// RuleID is the signature id shared with the prebuilt asset.
	RuleID string `json:"rule_id"`

	// Revision increments on every change to the installed rule.
	Revision int `json:"revision"`

	// Immutable marks rules installed from a prebuilt package.
	Immutable bool `json:"immutable"`

	// Source records where the rule came from and whether it was customized.
	Source Source `json:"rule_source"`

	// Params holds the rule fields, rule_id, name, type and version included.
	Params Params `json:"params"`

	// CreatedAt is when the rule was installed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the rule was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Name returns the rule name.
func (r *Rule) Name() string {
	return r.Params.String(FieldName)
}

// Type returns the rule type.
func (r *Rule) Type() Type {
	return Type(r.Params.String(FieldType))
}

// Version returns the version of the prebuilt asset the rule corresponds to.
func (r *Rule) Version() int {
	return r.Params.Int(FieldVersion)
}

// Tags returns the rule tags.
func (r *Rule) Tags() []string {
	return r.Params.Strings(FieldTags)
}

// IsPrebuilt reports whether the rule originates from a prebuilt package.
func (r *Rule) IsPrebuilt() bool {
	return r.Source.Type == SourceExternal
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.Params = r.Params.Clone()
	return &out
}

// FromAsset builds a freshly installed rule from a prebuilt asset.
func FromAsset(id string, a *Asset, now time.Time) *Rule {
	return &Rule{
		ID:        id,
		RuleID:    a.RuleID,
		Revision:  0,
		Immutable: true,
		Source:    ExternalSource(false),
		Params:    a.Params.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
