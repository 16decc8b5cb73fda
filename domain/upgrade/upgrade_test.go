package upgrade

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

func mustAsset(t *testing.T, fields map[string]any) *rule.Asset {
	t.Helper()
	a, err := rule.NewAsset(rule.MustParams(fields))
	if err != nil {
		t.Fatalf("NewAsset() error = %v", err)
	}
	return a
}

func installed(a *rule.Asset, revision int, patch map[string]any) *rule.Rule {
	r := rule.FromAsset("id-"+a.RuleID, a, time.Time{})
	r.Revision = revision
	for k, v := range patch {
		r.Params = r.Params.With(k, v)
	}
	r.Source = rule.CalculateSource(r.Params, a, true)
	return r
}

func queryAsset(t *testing.T, version int, name string) *rule.Asset {
	t.Helper()
	return mustAsset(t, map[string]any{
		"rule_id":     "query-rule",
		"version":     version,
		"type":        "query",
		"language":    "kuery",
		"query":       "process.name: *",
		"name":        name,
		"description": "desc",
		"tags":        []string{"stock"},
	})
}

func TestParsePickVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PickVersion
		wantErr bool
	}{
		{"BASE", PickBase, false},
		{"target", PickTarget, false},
		{" merged ", PickMerged, false},
		{"Resolved", PickResolved, false},
		{"LATEST", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePickVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePickVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("ParsePickVersion(%q) error = %v, want ErrInvalidRequest", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePickVersion(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestChain_Precedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chain Chain
		field string
		want  PickVersion
	}{
		{"default", Chain{}, "name", PickMerged},
		{"global", Chain{Global: PickTarget}, "name", PickTarget},
		{"rule over global", Chain{Global: PickTarget, Rule: PickCurrent}, "name", PickCurrent},
		{
			name:  "field over rule",
			chain: Chain{Global: PickTarget, Rule: PickCurrent, Fields: map[string]FieldSelection{"name": {PickVersion: PickBase}}},
			field: "name",
			want:  PickBase,
		},
		{
			name:  "other field falls back to rule",
			chain: Chain{Global: PickTarget, Rule: PickCurrent, Fields: map[string]FieldSelection{"name": {PickVersion: PickBase}}},
			field: "tags",
			want:  PickCurrent,
		},
		{
			name:  "empty field selection ignored",
			chain: Chain{Global: PickTarget, Fields: map[string]FieldSelection{"name": {}}},
			field: "name",
			want:  PickTarget,
		},
	}

	for _, tt := range tests {
		if got := tt.chain.For(tt.field).PickVersion; got != tt.want {
			t.Errorf("%s: For(%s) = %s, want %s", tt.name, tt.field, got, tt.want)
		}
	}
}

func TestChain_AllTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chain Chain
		want  bool
	}{
		{"default merged", Chain{}, false},
		{"global target", Chain{Global: PickTarget}, true},
		{"rule overrides global", Chain{Global: PickTarget, Rule: PickBase}, false},
		{"rule target", Chain{Global: PickBase, Rule: PickTarget}, true},
		{"field not target", Chain{Global: PickTarget, Fields: map[string]FieldSelection{"name": {PickVersion: PickMerged}}}, false},
		{"field target", Chain{Global: PickTarget, Fields: map[string]FieldSelection{"name": {PickVersion: PickTarget}}}, true},
	}

	for _, tt := range tests {
		if got := tt.chain.AllTarget(); got != tt.want {
			t.Errorf("%s: AllTarget() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResolveField(t *testing.T) {
	t.Parallel()

	conflict := diff.NewFieldDiff(diff.ThreeVersions[any]{Base: "A", Current: "B", Target: "C"})
	update := diff.NewFieldDiff(diff.ThreeVersions[any]{Base: "A", Current: "A", Target: "B"})
	noBase := diff.NewFieldDiff(diff.ThreeVersions[any]{Base: diff.Missing(), Current: "A", Target: "B"})

	tests := []struct {
		name    string
		fd      diff.FieldDiff
		sel     FieldSelection
		want    any
		wantErr error
	}{
		{"base", conflict, FieldSelection{PickVersion: PickBase}, "A", nil},
		{"current", conflict, FieldSelection{PickVersion: PickCurrent}, "B", nil},
		{"target", conflict, FieldSelection{PickVersion: PickTarget}, "C", nil},
		{"merged conflict", conflict, FieldSelection{PickVersion: PickMerged}, nil, ErrNonSolvableConflict},
		{"merged update", update, FieldSelection{PickVersion: PickMerged}, "B", nil},
		{"resolved verbatim", conflict, FieldSelection{PickVersion: PickResolved, ResolvedValue: "mine"}, "mine", nil},
		{"resolved structured", conflict, FieldSelection{PickVersion: PickResolved, ResolvedValue: []string{"x"}}, []any{"x"}, nil},
		{"resolved explicit nil", conflict, ResolvedTo(nil), nil, nil},
		{"resolved without value", conflict, FieldSelection{PickVersion: PickResolved}, nil, ErrInvalidRequest},
		{"base missing", noBase, FieldSelection{PickVersion: PickBase}, nil, ErrMissingBaseVersion},
		{"merged without base", noBase, FieldSelection{PickVersion: PickMerged}, "B", nil},
		{"unknown", update, FieldSelection{PickVersion: "LATEST"}, nil, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ResolveField("r1", "name", tt.fd, tt.sel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveField() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveField() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ResolveField() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chain   Chain
		wantErr error
	}{
		{"empty", Chain{}, nil},
		{"valid field", Chain{Fields: map[string]FieldSelection{"query": {PickVersion: PickTarget}}}, nil},
		{"invalid field", Chain{Fields: map[string]FieldSelection{"machine_learning_job_id": {PickVersion: PickTarget}}}, ErrInvalidFieldForType},
		{"resolved at rule level", Chain{Rule: PickResolved}, ErrInvalidRequest},
		{"unknown global", Chain{Global: "LATEST"}, ErrInvalidRequest},
		{"unknown field pick", Chain{Fields: map[string]FieldSelection{"query": {PickVersion: "X"}}}, ErrInvalidRequest},
		{"resolved field without value", Chain{Fields: map[string]FieldSelection{"query": {PickVersion: PickResolved}}}, ErrInvalidRequest},
		{"resolved field with nil value", Chain{Fields: map[string]FieldSelection{"query": ResolvedTo(nil)}}, nil},
	}

	for _, tt := range tests {
		err := ValidateChain(rule.TypeEQL, tt.chain)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("%s: ValidateChain() error = %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: ValidateChain() error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	err := ValidateChain(rule.TypeEQL, Chain{Fields: map[string]FieldSelection{"machine_learning_job_id": {PickVersion: PickTarget}}})
	want := "machine_learning_job_id is not a valid upgradeable field for type 'eql'"
	if err == nil || err.Error() != want {
		t.Errorf("ValidateChain() error = %v, want %q", err, want)
	}
}

func TestMerge_StockUpdate(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "B")
	current := installed(base, 0, nil)

	res, err := Merge(MergeInput{Base: base, Current: current, Target: target, Chain: Chain{Global: PickMerged}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	name, _ := res.Diff.Field("name")
	if name.DiffOutcome != diff.StockValueCanUpdate || !name.HasUpdate {
		t.Errorf("name diff = %s/%v, want StockValueCanUpdate/true", name.DiffOutcome, name.HasUpdate)
	}
	if got := res.Rule.Name(); got != "B" {
		t.Errorf("Name() = %q, want B", got)
	}
	if res.Rule.Version() != 2 {
		t.Errorf("Version() = %d, want 2", res.Rule.Version())
	}
	if res.Rule.Revision != 1 {
		t.Errorf("Revision = %d, want 1", res.Rule.Revision)
	}
	if res.Rule.Source != rule.ExternalSource(false) {
		t.Errorf("Source = %+v, want external not customized", res.Rule.Source)
	}
	if current.Name() != "A" || current.Revision != 0 {
		t.Error("Merge mutated the current rule")
	}
}

func TestMerge_NonSolvableConflict(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "C")
	current := installed(base, 1, map[string]any{"name": "B"})

	_, err := Merge(MergeInput{Base: base, Current: current, Target: target, Chain: Chain{Global: PickMerged}})
	var conflictErr *NonSolvableConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Merge() error = %v, want NonSolvableConflictError", err)
	}
	if conflictErr.Field != "name" {
		t.Errorf("Field = %s, want name", conflictErr.Field)
	}
	want := "Automatic merge calculation for field 'name' in rule of rule_id query-rule resulted in a conflict. Please resolve the conflict manually or choose another value for 'pick_version'."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// Overriding the conflicting field with TARGET succeeds.
	res, err := Merge(MergeInput{
		Base:    base,
		Current: current,
		Target:  target,
		Chain:   Chain{Global: PickMerged, Fields: map[string]FieldSelection{"name": {PickVersion: PickTarget}}},
	})
	if err != nil {
		t.Fatalf("Merge() with override error = %v", err)
	}
	if res.Rule.Name() != "C" {
		t.Errorf("Name() = %q, want C", res.Rule.Name())
	}

	// MERGED at field level under a TARGET rule still fails.
	_, err = Merge(MergeInput{
		Base:    base,
		Current: current,
		Target:  target,
		Chain:   Chain{Global: PickTarget, Fields: map[string]FieldSelection{"name": {PickVersion: PickMerged}}},
	})
	if !errors.Is(err, ErrNonSolvableConflict) {
		t.Errorf("Merge() error = %v, want ErrNonSolvableConflict", err)
	}
}

func TestMerge_Resolved(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "C")
	current := installed(base, 1, map[string]any{"name": "B"})

	res, err := Merge(MergeInput{
		Base:    base,
		Current: current,
		Target:  target,
		Chain: Chain{Global: PickMerged, Fields: map[string]FieldSelection{
			"name": {PickVersion: PickResolved, ResolvedValue: "Resolved"},
		}},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Rule.Name() != "Resolved" {
		t.Errorf("Name() = %q, want Resolved", res.Rule.Name())
	}
	if !res.Rule.Source.IsCustomized {
		t.Error("resolved value differing from target should be customized")
	}
}

func TestMerge_ResolvedWithoutValue(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "C")
	current := installed(base, 1, map[string]any{"name": "B"})

	_, err := Merge(MergeInput{
		Base:    base,
		Current: current,
		Target:  target,
		Chain:   Chain{Fields: map[string]FieldSelection{"name": {PickVersion: PickResolved}}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Merge() error = %v, want ErrInvalidRequest", err)
	}
}

func TestMerge_KeepsNonUpgradableFields(t *testing.T) {
	t.Parallel()

	stock := map[string]any{
		"rule_id":  "query-rule",
		"type":     "query",
		"language": "kuery",
		"query":    "process.name: *",
		"actions":  []string{"stock"},
	}
	with := func(version int, name string) map[string]any {
		m := map[string]any{"version": version, "name": name}
		for k, v := range stock {
			m[k] = v
		}
		return m
	}
	base := mustAsset(t, with(1, "A"))
	target := mustAsset(t, with(2, "B"))
	current := installed(base, 1, map[string]any{
		"actions": []string{"mine"},
		"meta":    map[string]any{"k": 1},
	})

	res, err := Merge(MergeInput{Base: base, Current: current, Target: target, Chain: Chain{Global: PickTarget}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if _, ok := res.Diff.Field("actions"); ok {
		t.Error("actions should not be diffed")
	}
	if diff := cmp.Diff([]any{"mine"}, res.Rule.Params.Get("actions")); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"k": float64(1)}, res.Rule.Params.Get("meta")); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}
	if got := res.Rule.Name(); got != "B" {
		t.Errorf("Name() = %q, want B", got)
	}
}

func TestFieldSelection_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		want     FieldSelection
		hasValue bool
	}{
		{`{"pick_version":"RESOLVED"}`, FieldSelection{PickVersion: PickResolved}, false},
		{`{"pick_version":"RESOLVED","resolved_value":null}`, ResolvedTo(nil), true},
		{`{"pick_version":"RESOLVED","resolved_value":["a"]}`, ResolvedTo([]any{"a"}), true},
		{`{"pick_version":"TARGET"}`, FieldSelection{PickVersion: PickTarget}, false},
	}

	for _, tt := range tests {
		var got FieldSelection
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Unmarshal(%s) mismatch (-want +got):\n%s", tt.in, diff)
		}
		if got.HasValue() != tt.hasValue {
			t.Errorf("Unmarshal(%s).HasValue() = %v, want %v", tt.in, got.HasValue(), tt.hasValue)
		}

		data, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var again FieldSelection
		if err := json.Unmarshal(data, &again); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if again.HasValue() != tt.hasValue {
			t.Errorf("%s does not keep HasValue() = %v", data, tt.hasValue)
		}
	}
}

func TestMerge_KeepsCustomizationWithoutStockChange(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "A")
	current := installed(base, 1, map[string]any{"description": "mine"})

	res, err := Merge(MergeInput{Base: base, Current: current, Target: target})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := res.Rule.Params.String("description"); got != "mine" {
		t.Errorf("description = %q, want mine", got)
	}
	if !res.Rule.Source.IsCustomized {
		t.Error("Source.IsCustomized = false, want true")
	}
}

func TestMerge_MissingBase(t *testing.T) {
	t.Parallel()

	target := queryAsset(t, 2, "B")
	current := installed(queryAsset(t, 1, "A"), 0, map[string]any{"description": "mine"})

	res, err := Merge(MergeInput{Base: nil, Current: current, Target: target})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	desc, _ := res.Diff.Field("description")
	if desc.HasBaseVersion || desc.DiffOutcome != diff.StockValueCanUpdate || desc.Conflict != diff.NoConflict {
		t.Errorf("description diff = %+v", desc)
	}
	if res.Rule.Name() != "B" || res.Rule.Params.String("description") != "desc" {
		t.Errorf("merged rule = %v", res.Rule.Params)
	}

	_, err = Merge(MergeInput{Base: nil, Current: current, Target: target, Chain: Chain{Global: PickBase}})
	var missing *MissingBaseVersionError
	if !errors.As(err, &missing) {
		t.Fatalf("Merge() error = %v, want MissingBaseVersionError", err)
	}
}

func TestMerge_RuleTypeChange(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	current := installed(base, 0, nil)
	target := mustAsset(t, map[string]any{
		"rule_id":                 "query-rule",
		"version":                 2,
		"type":                    "machine_learning",
		"name":                    "A",
		"machine_learning_job_id": "job_id",
		"anomaly_threshold":       1,
	})

	_, err := Merge(MergeInput{Base: base, Current: current, Target: target, Chain: Chain{Global: PickBase}})
	var typeErr *RuleTypeChangeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("Merge() error = %v, want RuleTypeChangeError", err)
	}
	if !strings.Contains(err.Error(), "Rule update for rule query-rule has a rule type change") {
		t.Errorf("Error() = %q", err.Error())
	}

	res, err := Merge(MergeInput{Base: base, Current: current, Target: target, Chain: Chain{Global: PickTarget}})
	if err != nil {
		t.Fatalf("Merge() with TARGET error = %v", err)
	}
	if !res.TypeChanged || res.Rule.Type() != rule.TypeMachineLearning {
		t.Errorf("TypeChanged = %v, Type() = %s", res.TypeChanged, res.Rule.Type())
	}
	if res.Rule.Params.Has("query") {
		t.Error("query should not survive a change to machine_learning")
	}
	if res.Rule.ID != current.ID {
		t.Errorf("ID = %s, want %s", res.Rule.ID, current.ID)
	}
}

func TestMerge_InvalidFieldForType(t *testing.T) {
	t.Parallel()

	base := queryAsset(t, 1, "A")
	target := queryAsset(t, 2, "B")

	_, err := Merge(MergeInput{
		Base:    base,
		Current: installed(base, 0, nil),
		Target:  target,
		Chain:   Chain{Global: PickTarget, Fields: map[string]FieldSelection{"machine_learning_job_id": {PickVersion: PickTarget}}},
	})
	if !errors.Is(err, ErrInvalidFieldForType) {
		t.Errorf("Merge() error = %v, want ErrInvalidFieldForType", err)
	}
}

func TestPerformRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     PerformRequest
		wantErr bool
	}{
		{"all rules", PerformRequest{Mode: ModeAllRules}, false},
		{"all rules with rules", PerformRequest{Mode: ModeAllRules, Rules: []RuleSpec{{RuleID: "a"}}}, true},
		{"specific without rules", PerformRequest{Mode: ModeSpecificRules}, true},
		{"specific", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{RuleID: "a"}}}, false},
		{"duplicate", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{RuleID: "a"}, {RuleID: "a"}}}, true},
		{"empty rule id", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{}}}, true},
		{"resolved global", PerformRequest{Mode: ModeAllRules, PickVersion: PickResolved}, true},
		{"resolved field without value", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{RuleID: "a", Fields: map[string]FieldSelection{
			"name": {PickVersion: PickResolved},
		}}}}, true},
		{"resolved field with value", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{RuleID: "a", Fields: map[string]FieldSelection{
			"name": {PickVersion: PickResolved, ResolvedValue: "mine"},
		}}}}, false},
		{"unknown field pick", PerformRequest{Mode: ModeSpecificRules, Rules: []RuleSpec{{RuleID: "a", Fields: map[string]FieldSelection{
			"name": {PickVersion: "LATEST"},
		}}}}, true},
		{"unknown mode", PerformRequest{Mode: "SOME"}, true},
	}

	for _, tt := range tests {
		err := tt.req.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: Validate() error = %v, want ErrInvalidRequest", tt.name, err)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
		is   error
	}{
		{&RevisionMismatchError{RuleID: "r1", Expected: 1, Actual: 2}, "Revision mismatch for rule_id r1: expected 1, got 2", ErrRevisionMismatch},
		{&RuleNotFoundError{RuleID: "r1"}, "Rule with rule_id r1 not found", ErrRuleNotFound},
		{&AssetNotFoundError{RuleID: "r1", Version: 3}, "Rule with rule_id r1 and version 3 not found", ErrAssetNotFound},
		{&MissingBaseVersionError{Field: "name", RuleID: "r1"}, "Cannot pick BASE version for field 'name' in rule of rule_id r1: base version is missing", ErrMissingBaseVersion},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.want {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
		}
		if !errors.Is(tt.err, tt.is) {
			t.Errorf("errors.Is(%T, %v) = false", tt.err, tt.is)
		}
	}
}
