package diff

import (
	"encoding/json"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// RuleDiff is the field-by-field diff of one rule plus rule-level aggregates.
type RuleDiff struct {
	// Fields holds a diff for every upgradable field of the rule type.
	Fields map[string]FieldDiff

	// Order lists the field names in schema order.
	Order []string

	Aggregates
}

// Aggregates are the rule-level counts derived from field diffs.
type Aggregates struct {
	NumFieldsWithUpdates              int
	NumFieldsWithConflicts            int
	NumFieldsWithNonSolvableConflicts int
	HasConflict                       bool
	HasNonSolvableConflict            bool
}

// Calculate diffs every named field of the three rule versions.
func Calculate(v ThreeVersions[rule.Params], fields []string) *RuleDiff {
	d := &RuleDiff{
		Fields: make(map[string]FieldDiff, len(fields)),
		Order:  make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		if _, dup := d.Fields[f]; dup {
			continue
		}
		d.Fields[f] = NewFieldDiff(Extract(f, v))
		d.Order = append(d.Order, f)
	}
	d.Aggregates = Aggregate(d.Fields)
	return d
}

// CalculateForType diffs the upgradable fields of the given rule type.
func CalculateForType(v ThreeVersions[rule.Params], t rule.Type) *RuleDiff {
	return Calculate(v, rule.UpgradableFields(t))
}

// Aggregate counts updates and conflicts over a set of field diffs.
func Aggregate(fields map[string]FieldDiff) Aggregates {
	var a Aggregates
	for _, fd := range fields {
		if fd.HasUpdate {
			a.NumFieldsWithUpdates++
		}
		if fd.Conflict != NoConflict {
			a.NumFieldsWithConflicts++
		}
		if fd.Conflict == NonSolvableConflict {
			a.NumFieldsWithNonSolvableConflicts++
		}
	}
	a.HasConflict = a.NumFieldsWithConflicts > 0
	a.HasNonSolvableConflict = a.NumFieldsWithNonSolvableConflicts > 0
	return a
}

// Field returns the diff of a field.
func (d *RuleDiff) Field(name string) (FieldDiff, bool) {
	fd, ok := d.Fields[name]
	return fd, ok
}

// Changed returns the names of fields whose diff is worth showing to a
// user, in schema order: everything except untouched stock values.
func (d *RuleDiff) Changed() []string {
	out := make([]string, 0, len(d.Order))
	for _, f := range d.Order {
		if d.Fields[f].DiffOutcome != StockValueNoUpdate {
			out = append(out, f)
		}
	}
	return out
}

// Conflicts returns the names of conflicting fields in schema order.
func (d *RuleDiff) Conflicts() []string {
	var out []string
	for _, f := range d.Order {
		if d.Fields[f].IsConflict() {
			out = append(out, f)
		}
	}
	return out
}

// MarshalJSON renders the diff with snake_case aggregate names.
func (d *RuleDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fields                            map[string]FieldDiff `json:"fields"`
		NumFieldsWithUpdates              int                  `json:"num_fields_with_updates"`
		NumFieldsWithConflicts            int                  `json:"num_fields_with_conflicts"`
		NumFieldsWithNonSolvableConflicts int                  `json:"num_fields_with_non_solvable_conflicts"`
		HasConflict                       bool                 `json:"has_conflict"`
		HasNonSolvableConflict            bool                 `json:"has_non_solvable_conflict"`
	}{
		Fields:                            d.Fields,
		NumFieldsWithUpdates:              d.NumFieldsWithUpdates,
		NumFieldsWithConflicts:            d.NumFieldsWithConflicts,
		NumFieldsWithNonSolvableConflicts: d.NumFieldsWithNonSolvableConflicts,
		HasConflict:                       d.HasConflict,
		HasNonSolvableConflict:            d.HasNonSolvableConflict,
	})
}
