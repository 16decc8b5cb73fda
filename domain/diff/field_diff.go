package diff

import "encoding/json"

// FieldDiff is the classified three-way diff of one field.
type FieldDiff struct {
	ThreeVersions[any]

	// MergedVersion is the value the automatic merge proposes. For a
	// non-solvable conflict it is the current value.
	MergedVersion any `json:"merged_version"`

	DiffOutcome  DiffOutcome  `json:"diff_outcome"`
	MergeOutcome MergeOutcome `json:"merge_outcome"`
	Conflict     Conflict     `json:"conflict"`

	// HasUpdate is true when the target brings a change the current value
	// does not have.
	HasUpdate bool `json:"has_update"`

	// HasBaseVersion is false when the base is the Missing sentinel.
	HasBaseVersion bool `json:"has_base_version"`
}

// NewFieldDiff classifies a field triple.
func NewFieldDiff(v ThreeVersions[any]) FieldDiff {
	c := Classify(v)
	d := FieldDiff{
		ThreeVersions:  v,
		DiffOutcome:    c.DiffOutcome,
		MergeOutcome:   c.MergeOutcome,
		Conflict:       c.Conflict,
		HasUpdate:      c.HasUpdate,
		HasBaseVersion: v.HasBase(),
	}
	switch c.MergeOutcome {
	case MergeTarget:
		d.MergedVersion = v.Target
	default:
		d.MergedVersion = v.Current
	}
	return d
}

// IsConflict reports whether the field has a conflict of any grade.
func (d FieldDiff) IsConflict() bool {
	return d.Conflict != NoConflict
}

// MarshalJSON omits base_version when the base is missing.
func (d FieldDiff) MarshalJSON() ([]byte, error) {
	type wire struct {
		BaseVersion    any          `json:"base_version,omitempty"`
		CurrentVersion any          `json:"current_version"`
		TargetVersion  any          `json:"target_version"`
		MergedVersion  any          `json:"merged_version"`
		DiffOutcome    DiffOutcome  `json:"diff_outcome"`
		MergeOutcome   MergeOutcome `json:"merge_outcome"`
		Conflict       Conflict     `json:"conflict"`
		HasUpdate      bool         `json:"has_update"`
		HasBaseVersion bool         `json:"has_base_version"`
	}
	w := wire{
		CurrentVersion: d.Current,
		TargetVersion:  d.Target,
		MergedVersion:  d.MergedVersion,
		DiffOutcome:    d.DiffOutcome,
		MergeOutcome:   d.MergeOutcome,
		Conflict:       d.Conflict,
		HasUpdate:      d.HasUpdate,
		HasBaseVersion: d.HasBaseVersion,
	}
	if d.HasBaseVersion {
		w.BaseVersion = d.Base
	}
	return json.Marshal(w)
}
