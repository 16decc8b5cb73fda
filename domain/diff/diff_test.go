package diff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

func triple(base, current, target any) ThreeVersions[any] {
	return ThreeVersions[any]{Base: base, Current: current, Target: target}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		versions     ThreeVersions[any]
		wantOutcome  DiffOutcome
		wantMerge    MergeOutcome
		wantConflict Conflict
		wantUpdate   bool
		wantMerged   any
	}{
		{
			name:         "AAA no update",
			versions:     triple("A", "A", "A"),
			wantOutcome:  StockValueNoUpdate,
			wantMerge:    MergeCurrent,
			wantConflict: NoConflict,
			wantMerged:   "A",
		},
		{
			name:         "AAB stock update",
			versions:     triple("A", "A", "B"),
			wantOutcome:  StockValueCanUpdate,
			wantMerge:    MergeTarget,
			wantConflict: NoConflict,
			wantUpdate:   true,
			wantMerged:   "B",
		},
		{
			name:         "ABA customized no update",
			versions:     triple("A", "B", "A"),
			wantOutcome:  CustomizedValueNoUpdate,
			wantMerge:    MergeCurrent,
			wantConflict: NoConflict,
			wantMerged:   "B",
		},
		{
			name:         "ABB customized same update",
			versions:     triple("A", "B", "B"),
			wantOutcome:  CustomizedValueSameUpdate,
			wantMerge:    MergeCurrent,
			wantConflict: NoConflict,
			wantMerged:   "B",
		},
		{
			name:         "ABC customized can update",
			versions:     triple("A", "B", "C"),
			wantOutcome:  CustomizedValueCanUpdate,
			wantMerge:    MergeConflict,
			wantConflict: NonSolvableConflict,
			wantUpdate:   true,
			wantMerged:   "B",
		},
		{
			name:         "-AA missing base no update",
			versions:     triple(Missing(), "A", "A"),
			wantOutcome:  StockValueNoUpdate,
			wantMerge:    MergeCurrent,
			wantConflict: NoConflict,
			wantMerged:   "A",
		},
		{
			name:         "-AB missing base can update",
			versions:     triple(Missing(), "A", "B"),
			wantOutcome:  StockValueCanUpdate,
			wantMerge:    MergeTarget,
			wantConflict: NoConflict,
			wantUpdate:   true,
			wantMerged:   "B",
		},
		{
			name:         "absent field added by target",
			versions:     triple(nil, nil, []any{"x"}),
			wantOutcome:  StockValueCanUpdate,
			wantMerge:    MergeTarget,
			wantConflict: NoConflict,
			wantUpdate:   true,
			wantMerged:   []any{"x"},
		},
		{
			name:         "structured values",
			versions:     triple(map[string]any{"a": 1.0}, map[string]any{"a": 2.0}, map[string]any{"a": 3.0}),
			wantOutcome:  CustomizedValueCanUpdate,
			wantMerge:    MergeConflict,
			wantConflict: NonSolvableConflict,
			wantUpdate:   true,
			wantMerged:   map[string]any{"a": 2.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewFieldDiff(tt.versions)
			if d.DiffOutcome != tt.wantOutcome {
				t.Errorf("DiffOutcome = %s, want %s", d.DiffOutcome, tt.wantOutcome)
			}
			if d.MergeOutcome != tt.wantMerge {
				t.Errorf("MergeOutcome = %s, want %s", d.MergeOutcome, tt.wantMerge)
			}
			if d.Conflict != tt.wantConflict {
				t.Errorf("Conflict = %s, want %s", d.Conflict, tt.wantConflict)
			}
			if d.HasUpdate != tt.wantUpdate {
				t.Errorf("HasUpdate = %v, want %v", d.HasUpdate, tt.wantUpdate)
			}
			if diff := cmp.Diff(tt.wantMerged, d.MergedVersion); diff != "" {
				t.Errorf("MergedVersion mismatch (-want +got):\n%s", diff)
			}
			if d.HasBaseVersion == IsMissing(tt.versions.Base) {
				t.Errorf("HasBaseVersion = %v for base %#v", d.HasBaseVersion, tt.versions.Base)
			}
		})
	}
}

func TestIsMissing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"sentinel", Missing(), true},
		{"nil", nil, false},
		{"empty struct", struct{}{}, false},
		{"empty params", rule.Params{}, false},
	}

	for _, tt := range tests {
		if got := IsMissing(tt.in); got != tt.want {
			t.Errorf("%s: IsMissing(%#v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
	if a, b := Missing(), Missing(); a != b {
		t.Error("Missing() should always return the same value")
	}
	if RuleVersions(nil, &rule.Rule{}, &rule.Asset{}).HasBase() {
		t.Error("RuleVersions without a base asset should have no base")
	}
}

func TestClassify_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []ThreeVersions[any]{
		triple("A", "A", "A"),
		triple("A", "B", "C"),
		triple(Missing(), "A", "B"),
		triple([]any{"x"}, []any{"y"}, []any{"x"}),
	}

	for _, in := range inputs {
		first := NewFieldDiff(in)
		second := NewFieldDiff(in)
		if diff := cmp.Diff(first, second, cmp.Comparer(func(a, b missingVersion) bool { return true })); diff != "" {
			t.Errorf("NewFieldDiff not idempotent (-first +second):\n%s", diff)
		}
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	base := rule.MustParams(map[string]any{"name": "A", "tags": []string{"t"}})
	current := rule.MustParams(map[string]any{"name": "B"})
	target := rule.MustParams(map[string]any{"name": "C", "tags": []string{"t", "u"}})

	got := Extract("tags", ThreeVersions[rule.Params]{Base: base, Current: current, Target: target})
	if !rule.Equal(got.Base, []any{"t"}) {
		t.Errorf("Base = %#v, want [t]", got.Base)
	}
	if got.Current != nil {
		t.Errorf("Current = %#v, want nil", got.Current)
	}
	if !rule.Equal(got.Target, []any{"t", "u"}) {
		t.Errorf("Target = %#v, want [t u]", got.Target)
	}

	missing := Extract("name", ThreeVersions[rule.Params]{Base: Missing(), Current: current, Target: target})
	if !IsMissing(missing.Base) {
		t.Errorf("Base = %#v, want Missing()", missing.Base)
	}
	if missing.HasBase() {
		t.Error("HasBase() = true, want false")
	}
}

func TestCalculate_AllFieldsPresent(t *testing.T) {
	t.Parallel()

	versions := ThreeVersions[rule.Params]{
		Base:    rule.MustParams(map[string]any{"name": "A", "type": "query", "version": 1, "description": "d"}),
		Current: rule.MustParams(map[string]any{"name": "B", "type": "query", "version": 1, "description": "d"}),
		Target:  rule.MustParams(map[string]any{"name": "C", "type": "query", "version": 2, "description": "d2"}),
	}

	d := CalculateForType(versions, rule.TypeQuery)

	fields := rule.UpgradableFields(rule.TypeQuery)
	if len(d.Fields) != len(fields) {
		t.Fatalf("len(Fields) = %d, want %d", len(d.Fields), len(fields))
	}
	for _, f := range fields {
		if _, ok := d.Field(f); !ok {
			t.Errorf("field %s missing from diff", f)
		}
	}
	if diff := cmp.Diff(fields, d.Order); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}

	// name conflicts, version and description are stock updates.
	if d.NumFieldsWithUpdates != 3 {
		t.Errorf("NumFieldsWithUpdates = %d, want 3", d.NumFieldsWithUpdates)
	}
	if d.NumFieldsWithConflicts != 1 || d.NumFieldsWithNonSolvableConflicts != 1 {
		t.Errorf("conflicts = %d/%d, want 1/1", d.NumFieldsWithConflicts, d.NumFieldsWithNonSolvableConflicts)
	}
	if !d.HasConflict || !d.HasNonSolvableConflict {
		t.Errorf("HasConflict = %v, HasNonSolvableConflict = %v", d.HasConflict, d.HasNonSolvableConflict)
	}

	if diff := cmp.Diff([]string{"name"}, d.Conflicts()); diff != "" {
		t.Errorf("Conflicts() mismatch (-want +got):\n%s", diff)
	}
	changed := d.Changed()
	if len(changed) != 3 {
		t.Errorf("Changed() = %v, want name, version and description", changed)
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	fields := map[string]FieldDiff{
		"a": NewFieldDiff(triple("A", "A", "A")),
		"b": NewFieldDiff(triple("A", "A", "B")),
		"c": NewFieldDiff(triple("A", "B", "C")),
		"d": {Conflict: SolvableConflict, HasUpdate: true},
	}

	got := Aggregate(fields)
	want := Aggregates{
		NumFieldsWithUpdates:              3,
		NumFieldsWithConflicts:            2,
		NumFieldsWithNonSolvableConflicts: 1,
		HasConflict:                       true,
		HasNonSolvableConflict:            true,
	}
	if got != want {
		t.Errorf("Aggregate() = %+v, want %+v", got, want)
	}

	if empty := Aggregate(nil); empty != (Aggregates{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero", empty)
	}
}

func TestFieldDiff_MarshalJSON(t *testing.T) {
	t.Parallel()

	withBase, err := json.Marshal(NewFieldDiff(triple("A", "A", "B")))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(withBase), `"base_version":"A"`) {
		t.Errorf("JSON = %s, want base_version", withBase)
	}

	missing, err := json.Marshal(NewFieldDiff(triple(Missing(), "A", "B")))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(missing), "base_version") {
		t.Errorf("JSON = %s, want no base_version", missing)
	}
	if !strings.Contains(string(missing), `"has_base_version":false`) {
		t.Errorf("JSON = %s, want has_base_version false", missing)
	}
}

func TestRuleDiff_MarshalJSON(t *testing.T) {
	t.Parallel()

	versions := ThreeVersions[rule.Params]{
		Base:    Missing(),
		Current: rule.MustParams(map[string]any{"name": "A"}),
		Target:  rule.MustParams(map[string]any{"name": "B"}),
	}
	data, err := json.Marshal(Calculate(versions, []string{"name"}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["num_fields_with_updates"] != 1.0 {
		t.Errorf("num_fields_with_updates = %v, want 1", decoded["num_fields_with_updates"])
	}
	if decoded["has_conflict"] != false {
		t.Errorf("has_conflict = %v, want false", decoded["has_conflict"])
	}
}
