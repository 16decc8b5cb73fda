package rule

// Type is the detection rule type discriminator.
type Type string

// Rule types.
const (
	TypeEQL             Type = "eql"
	TypeQuery           Type = "query"
	TypeSavedQuery      Type = "saved_query"
	TypeThreshold       Type = "threshold"
	TypeThreatMatch     Type = "threat_match"
	TypeMachineLearning Type = "machine_learning"
	TypeNewTerms        Type = "new_terms"
	TypeESQL            Type = "esql"
)

// Types returns every known rule type.
func Types() []Type {
	return []Type{
		TypeEQL,
		TypeQuery,
		TypeSavedQuery,
		TypeThreshold,
		TypeThreatMatch,
		TypeMachineLearning,
		TypeNewTerms,
		TypeESQL,
	}
}

// Valid reports whether t is a known rule type.
func (t Type) Valid() bool {
	_, ok := upgradableFieldsByType[t]
	return ok
}

// String returns the type tag.
func (t Type) String() string {
	return string(t)
}
