package diff

import "github.com/felixgeelhaar/ruleup/domain/rule"

// DiffOutcome classifies how the three versions of a field relate.
type DiffOutcome string

// Diff outcomes.
const (
	// StockValueNoUpdate: not customized and the stock value did not change.
	StockValueNoUpdate DiffOutcome = "BASE=A, CURRENT=A, TARGET=A"
	// StockValueCanUpdate: not customized and the stock value changed.
	StockValueCanUpdate DiffOutcome = "BASE=A, CURRENT=A, TARGET=B"
	// CustomizedValueNoUpdate: customized and the stock value did not change.
	CustomizedValueNoUpdate DiffOutcome = "BASE=A, CURRENT=B, TARGET=A"
	// CustomizedValueSameUpdate: customized to the same value the stock changed to.
	CustomizedValueSameUpdate DiffOutcome = "BASE=A, CURRENT=B, TARGET=B"
	// CustomizedValueCanUpdate: customized and the stock changed to another value.
	CustomizedValueCanUpdate DiffOutcome = "BASE=A, CURRENT=B, TARGET=C"
)

// MergeOutcome tells which version the automatic merge selected.
type MergeOutcome string

// Merge outcomes.
const (
	MergeCurrent  MergeOutcome = "CURRENT"
	MergeTarget   MergeOutcome = "TARGET"
	MergeConflict MergeOutcome = "CONFLICT"
)

// Conflict grades a field conflict.
type Conflict string

// Conflict grades. SolvableConflict is never produced by Classify; it is kept
// for merge strategies that reconcile both sides automatically.
const (
	NoConflict          Conflict = "NONE"
	SolvableConflict    Conflict = "SOLVABLE"
	NonSolvableConflict Conflict = "NON_SOLVABLE"
)

// Classification is the result of classifying a field triple.
type Classification struct {
	DiffOutcome  DiffOutcome
	MergeOutcome MergeOutcome
	Conflict     Conflict
	HasUpdate    bool
}

// Classify compares the three versions of a field.
//
// With a base version, a field is customized when current differs from base
// and has a stock update when target differs from base. Without a base only
// current and target are compared: equal values have no update, different
// values are a conflict-free stock update.
func Classify(v ThreeVersions[any]) Classification {
	if !v.HasBase() {
		if rule.Equal(v.Current, v.Target) {
			return Classification{StockValueNoUpdate, MergeCurrent, NoConflict, false}
		}
		return Classification{StockValueCanUpdate, MergeTarget, NoConflict, true}
	}

	customized := !rule.Equal(v.Base, v.Current)
	stockChanged := !rule.Equal(v.Base, v.Target)

	switch {
	case !customized && !stockChanged:
		return Classification{StockValueNoUpdate, MergeCurrent, NoConflict, false}
	case !customized:
		return Classification{StockValueCanUpdate, MergeTarget, NoConflict, true}
	case !stockChanged:
		return Classification{CustomizedValueNoUpdate, MergeCurrent, NoConflict, false}
	case rule.Equal(v.Current, v.Target):
		return Classification{CustomizedValueSameUpdate, MergeCurrent, NoConflict, false}
	default:
		return Classification{CustomizedValueCanUpdate, MergeConflict, NonSolvableConflict, true}
	}
}
