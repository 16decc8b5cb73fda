package rule

// SourceType tells whether a rule is user-authored or comes from a package.
type SourceType string

// Rule source types.
const (
	SourceInternal SourceType = "internal"
	SourceExternal SourceType = "external"
)

// Source describes the origin of an installed rule.
type Source struct {
	Type SourceType `json:"type"`

	// IsCustomized is meaningful for external rules only.
	IsCustomized bool `json:"is_customized,omitempty"`
}

// InternalSource returns the source of a user-authored rule.
func InternalSource() Source {
	return Source{Type: SourceInternal}
}

// ExternalSource returns the source of a prebuilt rule.
func ExternalSource(customized bool) Source {
	return Source{Type: SourceExternal, IsCustomized: customized}
}

// NormalizeSource derives a source for rules persisted before sources were
// tracked: a missing source falls back to the immutable flag.
func NormalizeSource(immutable bool, src *Source) Source {
	if src != nil && src.Type != "" {
		if src.Type == SourceInternal {
			return InternalSource()
		}
		return *src
	}
	if immutable {
		return ExternalSource(false)
	}
	return InternalSource()
}

// CalculateSource computes the source of a rule from the asset carrying the
// same rule_id and version.
//
// A rule with no asset for its rule_id is internal. A rule whose rule_id is
// known but whose version has no asset is treated as customized. Otherwise the
// rule is customized when any upgradable field of its type differs from the
// asset.
func CalculateSource(params Params, matching *Asset, ruleIDExists bool) Source {
	if matching == nil {
		if !ruleIDExists {
			return InternalSource()
		}
		return ExternalSource(true)
	}
	return ExternalSource(IsCustomized(params, matching))
}

// IsCustomized reports whether any upgradable field of params differs from
// the asset.
func IsCustomized(params Params, asset *Asset) bool {
	t := Type(params.String(FieldType))
	if t != asset.Type() {
		return true
	}
	for _, f := range UpgradableFields(t) {
		if !Equal(params.Get(f), asset.Params.Get(f)) {
			return true
		}
	}
	return false
}
