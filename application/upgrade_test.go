package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
)

func specific(specs ...upgrade.RuleSpec) upgrade.PerformRequest {
	return upgrade.PerformRequest{Mode: upgrade.ModeSpecificRules, Rules: specs}
}

func TestPerformUpgrade_StockUpdate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	v2 := asset(t, "r1", 2, map[string]any{"name": "renamed", "query": "process.name: cmd.exe"})
	f.saveAssets(t, v1, v2)
	f.install(t, v1)

	resp, err := f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Revision: 0, Version: 2}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if want := (batch.Summary{Total: 1, Succeeded: 1}); resp.Summary != want {
		t.Fatalf("Summary = %+v, want %+v", resp.Summary, want)
	}

	got := f.stored(t, "r1")
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
	if got.Version() != 2 {
		t.Errorf("Version() = %d, want 2", got.Version())
	}
	if got.Name() != "renamed" {
		t.Errorf("Name() = %q, want %q", got.Name(), "renamed")
	}
	if got.ID != "installed-r1" {
		t.Errorf("ID = %q, want installed-r1", got.ID)
	}
	if diff := cmp.Diff(rule.ExternalSource(false), got.Source); diff != "" {
		t.Errorf("Source mismatch (-want +got):\n%s", diff)
	}
	if !got.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, testNow)
	}
	if n := f.metrics.count("upgraded:false"); n != 1 {
		t.Errorf("upgraded metric = %d, want 1", n)
	}
}

func TestPerformUpgrade_CustomizedWithoutConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	v2 := asset(t, "r1", 2, map[string]any{"name": "renamed"})
	f.saveAssets(t, v1, v2)
	f.install(t, v1)

	if _, err := f.engine.PatchRule(context.Background(), "r1", rule.Params{"description": "my description"}); err != nil {
		t.Fatalf("PatchRule() error = %v", err)
	}

	resp, err := f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Revision: 1, Version: 2}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if resp.Summary.Succeeded != 1 {
		t.Fatalf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
	}

	got := f.stored(t, "r1")
	if got.Name() != "renamed" {
		t.Errorf("Name() = %q, want renamed", got.Name())
	}
	if d := got.Params.String("description"); d != "my description" {
		t.Errorf("description = %q, want my description", d)
	}
	if got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
	if !got.Source.IsCustomized {
		t.Error("Source.IsCustomized = false, want true")
	}
}

func TestPerformUpgrade_NonSolvableConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	v2 := asset(t, "r1", 2, map[string]any{"name": "stock rename"})
	f.saveAssets(t, v1, v2)
	f.install(t, v1)

	if _, err := f.engine.PatchRule(context.Background(), "r1", rule.Params{"name": "my rename"}); err != nil {
		t.Fatalf("PatchRule() error = %v", err)
	}

	resp, err := f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Revision: 1, Version: 2}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if want := (batch.Summary{Total: 1, Failed: 1}); resp.Summary != want {
		t.Fatalf("Summary = %+v, want %+v", resp.Summary, want)
	}
	if !batch.HasError(resp.Errors, upgrade.ErrNonSolvableConflict) {
		t.Fatalf("Errors = %+v, want non-solvable conflict", resp.Errors)
	}
	want := "Automatic merge calculation for field 'name' in rule of rule_id r1 resulted in a conflict. Please resolve the conflict manually or choose another value for 'pick_version'."
	if resp.Errors[0].Message != want {
		t.Errorf("Message = %q, want %q", resp.Errors[0].Message, want)
	}
	if diff := cmp.Diff([]batch.ErrorRule{{ID: "r1", Name: "my rename"}}, resp.Errors[0].Rules); diff != "" {
		t.Errorf("Rules mismatch (-want +got):\n%s", diff)
	}
	if got := f.stored(t, "r1"); got.Revision != 1 || got.Version() != 1 {
		t.Errorf("stored rule changed: revision %d version %d", got.Revision, got.Version())
	}
	if n := f.metrics.count("failed:" + OpPerformUpgrade); n != 1 {
		t.Errorf("failed metric = %d, want 1", n)
	}

	// Resolving the conflicting field lets the upgrade through.
	req := specific(upgrade.RuleSpec{
		RuleID:   "r1",
		Revision: 1,
		Version:  2,
		Fields: map[string]upgrade.FieldSelection{
			"name": {PickVersion: upgrade.PickResolved, ResolvedValue: "final name"},
		},
	})
	resp, err = f.engine.PerformUpgrade(context.Background(), req)
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if resp.Summary.Succeeded != 1 {
		t.Fatalf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
	}
	got := f.stored(t, "r1")
	if got.Name() != "final name" {
		t.Errorf("Name() = %q, want final name", got.Name())
	}
	if got.Version() != 2 || got.Revision != 2 {
		t.Errorf("version %d revision %d, want 2 and 2", got.Version(), got.Revision)
	}
	if !got.Source.IsCustomized {
		t.Error("Source.IsCustomized = false, want true")
	}
}

func TestPerformUpgrade_PickTargetOverridesConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	v2 := asset(t, "r1", 2, map[string]any{"name": "stock rename"})
	f.saveAssets(t, v1, v2)
	f.install(t, v1)
	if _, err := f.engine.PatchRule(context.Background(), "r1", rule.Params{"name": "my rename"}); err != nil {
		t.Fatalf("PatchRule() error = %v", err)
	}

	req := specific(upgrade.RuleSpec{RuleID: "r1", Revision: 1, Version: 2})
	req.PickVersion = upgrade.PickTarget
	resp, err := f.engine.PerformUpgrade(context.Background(), req)
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if resp.Summary.Succeeded != 1 {
		t.Fatalf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
	}
	got := f.stored(t, "r1")
	if got.Name() != "stock rename" {
		t.Errorf("Name() = %q, want stock rename", got.Name())
	}
	if got.Source.IsCustomized {
		t.Error("Source.IsCustomized = true, want false")
	}
}

func TestPerformUpgrade_TypeChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		pick        upgrade.PickVersion
		wantSuccess bool
	}{
		{"merged rejected", upgrade.PickMerged, false},
		{"target accepted", upgrade.PickTarget, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			v1 := asset(t, "r1", 1, nil)
			v2 := asset(t, "r1", 2, map[string]any{"type": "eql", "language": "eql", "query": "process where true"})
			f.saveAssets(t, v1, v2)
			f.install(t, v1)

			req := specific(upgrade.RuleSpec{RuleID: "r1", Revision: 0, Version: 2, PickVersion: tt.pick})
			resp, err := f.engine.PerformUpgrade(context.Background(), req)
			if err != nil {
				t.Fatalf("PerformUpgrade() error = %v", err)
			}

			got := f.stored(t, "r1")
			if tt.wantSuccess {
				if resp.Summary.Succeeded != 1 {
					t.Fatalf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
				}
				if got.Type() != rule.TypeEQL {
					t.Errorf("Type() = %s, want eql", got.Type())
				}
				return
			}
			if !batch.HasError(resp.Errors, upgrade.ErrRuleTypeChange) {
				t.Errorf("Errors = %+v, want rule type change", resp.Errors)
			}
			if got.Type() != rule.TypeQuery {
				t.Errorf("Type() = %s, want query", got.Type())
			}
		})
	}
}

func TestPerformUpgrade_RuleErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		spec   upgrade.RuleSpec
		target error
	}{
		{"revision mismatch", upgrade.RuleSpec{RuleID: "r1", Revision: 3, Version: 2}, upgrade.ErrRevisionMismatch},
		{"rule not installed", upgrade.RuleSpec{RuleID: "missing", Version: 2}, upgrade.ErrRuleNotFound},
		{"custom rule", upgrade.RuleSpec{RuleID: "custom", Version: 1}, upgrade.ErrRuleNotFound},
		{"asset version missing", upgrade.RuleSpec{RuleID: "r1", Version: 9}, upgrade.ErrAssetNotFound},
		{
			name: "field not upgradable",
			spec: upgrade.RuleSpec{RuleID: "r1", Version: 2, Fields: map[string]upgrade.FieldSelection{
				"machine_learning_job_id": {PickVersion: upgrade.PickTarget},
			}},
			target: upgrade.ErrInvalidFieldForType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			v1 := asset(t, "r1", 1, nil)
			f.saveAssets(t, v1, asset(t, "r1", 2, map[string]any{"name": "renamed"}))
			f.install(t, v1)

			custom := rule.FromAsset("custom-id", asset(t, "custom", 1, nil), testNow)
			custom.Source = rule.InternalSource()
			if err := f.rules.Create(context.Background(), custom); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			resp, err := f.engine.PerformUpgrade(context.Background(), specific(tt.spec))
			if err != nil {
				t.Fatalf("PerformUpgrade() error = %v", err)
			}
			if resp.Summary.Failed != 1 {
				t.Fatalf("Summary = %+v, want one failure", resp.Summary)
			}
			if !batch.HasError(resp.Errors, tt.target) {
				t.Errorf("Errors = %+v, want %v", resp.Errors, tt.target)
			}
		})
	}
}

func TestPerformUpgrade_RevisionMismatchMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	f.saveAssets(t, v1, asset(t, "r1", 2, nil))
	f.install(t, v1)

	resp, err := f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Revision: 4, Version: 2}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	want := "Revision mismatch for rule_id r1: expected 4, got 0"
	if len(resp.Errors) != 1 || resp.Errors[0].Message != want {
		t.Errorf("Errors = %+v, want message %q", resp.Errors, want)
	}
}

func TestPerformUpgrade_UpToDate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	f.saveAssets(t, v1)
	f.install(t, v1)

	resp, err := f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Revision: 0, Version: 1}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	want := []batch.Skipped{{RuleID: "r1", Reason: batch.SkipRuleUpToDate}}
	if diff := cmp.Diff(want, resp.Results.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	if resp.Summary.Skipped != 1 {
		t.Errorf("Summary = %+v, want one skipped", resp.Summary)
	}
}

func TestPerformUpgrade_DryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	f.saveAssets(t, v1, asset(t, "r1", 2, map[string]any{"name": "renamed"}))
	f.install(t, v1)

	req := specific(upgrade.RuleSpec{RuleID: "r1", Revision: 0, Version: 2})
	req.DryRun = true
	resp, err := f.engine.PerformUpgrade(context.Background(), req)
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if len(resp.Results.Updated) != 1 || resp.Results.Updated[0].Name() != "renamed" {
		t.Fatalf("Updated = %+v, want the computed rule", resp.Results.Updated)
	}
	if got := f.stored(t, "r1"); got.Revision != 0 || got.Name() != "r1 name" {
		t.Errorf("dry run persisted: revision %d name %q", got.Revision, got.Name())
	}
	if n := f.metrics.count("upgraded:true"); n != 1 {
		t.Errorf("dry run metric = %d, want 1", n)
	}
}

func TestPerformUpgrade_AllRules(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a1, b1, c1 := asset(t, "a", 1, nil), asset(t, "b", 1, nil), asset(t, "c", 1, nil)
	f.saveAssets(t, a1, b1, c1,
		asset(t, "a", 2, map[string]any{"name": "a2"}),
		asset(t, "c", 3, map[string]any{"name": "c3"}),
	)
	f.install(t, c1)
	f.install(t, a1)
	f.install(t, b1)

	resp, err := f.engine.PerformUpgrade(context.Background(), upgrade.PerformRequest{Mode: upgrade.ModeAllRules})
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if want := (batch.Summary{Total: 2, Succeeded: 2}); resp.Summary != want {
		t.Fatalf("Summary = %+v, want %+v", resp.Summary, want)
	}

	var got []string
	for _, r := range resp.Results.Updated {
		got = append(got, r.RuleID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Errorf("updated rule_ids mismatch (-want +got):\n%s", diff)
	}
	if v := f.stored(t, "c").Version(); v != 3 {
		t.Errorf("c version = %d, want 3", v)
	}
	if v := f.stored(t, "b").Version(); v != 1 {
		t.Errorf("b version = %d, want 1", v)
	}
}

func TestPerformUpgrade_ErrorsGrouped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, err := f.engine.PerformUpgrade(context.Background(), specific(
		upgrade.RuleSpec{RuleID: "x", Version: 1},
		upgrade.RuleSpec{RuleID: "y", Version: 1},
	))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2 distinct messages", len(resp.Errors))
	}
	if resp.Errors[0].Rules[0].ID != "x" || resp.Errors[1].Rules[0].ID != "y" {
		t.Errorf("Errors out of request order: %+v", resp.Errors)
	}
}

func TestPerformUpgrade_InvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  upgrade.PerformRequest
	}{
		{"unknown mode", upgrade.PerformRequest{Mode: "SOME"}},
		{"all rules with rules", upgrade.PerformRequest{Mode: upgrade.ModeAllRules, Rules: []upgrade.RuleSpec{{RuleID: "r1"}}}},
		{"specific without rules", upgrade.PerformRequest{Mode: upgrade.ModeSpecificRules}},
		{"resolved global pick", upgrade.PerformRequest{Mode: upgrade.ModeAllRules, PickVersion: upgrade.PickResolved}},
		{"resolved field without value", specific(upgrade.RuleSpec{RuleID: "r1", Version: 2, Fields: map[string]upgrade.FieldSelection{
			"name": {PickVersion: upgrade.PickResolved},
		}})},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.engine.PerformUpgrade(context.Background(), tt.req)
			if !errors.Is(err, upgrade.ErrInvalidRequest) {
				t.Errorf("PerformUpgrade() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestPerformUpgrade_MissingBase(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	v1 := asset(t, "r1", 1, nil)
	f.saveAssets(t, asset(t, "r1", 2, map[string]any{"name": "renamed"}))
	f.install(t, v1)

	req := specific(upgrade.RuleSpec{RuleID: "r1", Version: 2, Fields: map[string]upgrade.FieldSelection{
		"name": {PickVersion: upgrade.PickBase},
	}})
	resp, err := f.engine.PerformUpgrade(context.Background(), req)
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if !batch.HasError(resp.Errors, upgrade.ErrMissingBaseVersion) {
		t.Errorf("Errors = %+v, want missing base version", resp.Errors)
	}

	// Without a base every differing field is a stock update.
	resp, err = f.engine.PerformUpgrade(context.Background(), specific(upgrade.RuleSpec{RuleID: "r1", Version: 2}))
	if err != nil {
		t.Fatalf("PerformUpgrade() error = %v", err)
	}
	if resp.Summary.Succeeded != 1 {
		t.Fatalf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
	}
	if got := f.stored(t, "r1").Name(); got != "renamed" {
		t.Errorf("Name() = %q, want renamed", got)
	}
}

func TestReviewUpgrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a1, b1, c1 := asset(t, "a", 1, nil), asset(t, "b", 1, map[string]any{"tags": []string{"b-tag"}}), asset(t, "c", 1, nil)
	f.saveAssets(t, a1, b1, c1,
		asset(t, "a", 2, map[string]any{"name": "a2"}),
		asset(t, "b", 2, map[string]any{"name": "b2", "tags": []string{"b-tag"}}),
	)
	f.install(t, a1)
	f.install(t, b1)
	f.install(t, c1)
	if _, err := f.engine.PatchRule(context.Background(), "b", rule.Params{"name": "mine"}); err != nil {
		t.Fatalf("PatchRule() error = %v", err)
	}

	resp, err := f.engine.ReviewUpgrade(context.Background(), upgrade.ReviewRequest{})
	if err != nil {
		t.Fatalf("ReviewUpgrade() error = %v", err)
	}

	want := upgrade.ReviewStats{
		NumRulesToUpgradeTotal:           2,
		NumRulesWithConflicts:            1,
		NumRulesWithNonSolvableConflicts: 1,
		Tags:                             []string{"b-tag", "stock"},
	}
	if diff := cmp.Diff(want, resp.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Rules) != 2 || resp.Rules[0].RuleID != "a" || resp.Rules[1].RuleID != "b" {
		t.Fatalf("Rules = %+v, want a and b", resp.Rules)
	}

	b := resp.Rules[1]
	if b.Revision != 1 || b.TargetRule.Version != 2 {
		t.Errorf("b revision %d target %d, want 1 and 2", b.Revision, b.TargetRule.Version)
	}
	fd, ok := b.Diff.Field("name")
	if !ok {
		t.Fatal("Diff.Field(name) missing")
	}
	if fd.Conflict != diff.NonSolvableConflict {
		t.Errorf("name conflict = %s, want %s", fd.Conflict, diff.NonSolvableConflict)
	}
	if n := f.metrics.count("conflict:name"); n != 1 {
		t.Errorf("conflict metric = %d, want 1", n)
	}

	// Review is read only.
	if got := f.stored(t, "a"); got.Version() != 1 {
		t.Errorf("a version = %d after review, want 1", got.Version())
	}
}

func TestReviewUpgrade_FilterAndMissingBase(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a1, b1 := asset(t, "a", 1, nil), asset(t, "b", 1, nil)
	f.saveAssets(t, a1,
		asset(t, "a", 2, map[string]any{"name": "a2"}),
		asset(t, "b", 2, map[string]any{"name": "b2"}),
	)
	f.install(t, a1)
	f.install(t, b1)

	resp, err := f.engine.ReviewUpgrade(context.Background(), upgrade.ReviewRequest{RuleIDs: []string{"b"}})
	if err != nil {
		t.Fatalf("ReviewUpgrade() error = %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].RuleID != "b" {
		t.Fatalf("Rules = %+v, want only b", resp.Rules)
	}
	fd, _ := resp.Rules[0].Diff.Field("name")
	if fd.HasBaseVersion {
		t.Error("HasBaseVersion = true, want false")
	}
	if fd.DiffOutcome != diff.StockValueCanUpdate {
		t.Errorf("DiffOutcome = %s, want %s", fd.DiffOutcome, diff.StockValueCanUpdate)
	}
}

func TestReviewUpgrade_ReportsSkippedIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a1, b1 := asset(t, "a", 1, nil), asset(t, "b", 1, nil)
	f.saveAssets(t, a1, b1, asset(t, "a", 2, map[string]any{"name": "a2"}))
	f.install(t, a1)
	f.install(t, b1)

	resp, err := f.engine.ReviewUpgrade(context.Background(), upgrade.ReviewRequest{
		RuleIDs: []string{"missing", "a", "b", "missing"},
	})
	if err != nil {
		t.Fatalf("ReviewUpgrade() error = %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].RuleID != "a" {
		t.Fatalf("Rules = %+v, want only a", resp.Rules)
	}

	want := []batch.Skipped{
		{RuleID: "missing", Reason: batch.SkipRuleNotInstalled},
		{RuleID: "b", Reason: batch.SkipRuleUpToDate},
	}
	if diff := cmp.Diff(want, resp.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}

	all, err := f.engine.ReviewUpgrade(context.Background(), upgrade.ReviewRequest{})
	if err != nil {
		t.Fatalf("ReviewUpgrade() error = %v", err)
	}
	if len(all.Skipped) != 0 {
		t.Errorf("Skipped = %+v, want none without explicit ids", all.Skipped)
	}
}
