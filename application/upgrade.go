package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
	"github.com/felixgeelhaar/ruleup/infrastructure/logging"
	"github.com/felixgeelhaar/ruleup/infrastructure/statemachine"
)

// upgradeCandidate is an installed prebuilt rule with a newer asset.
type upgradeCandidate struct {
	current *rule.Rule
	target  *rule.Asset
}

// candidates lists installed prebuilt rules whose latest asset version is
// greater than the installed version, ordered by rule_id.
func (e *Engine) candidates(ctx context.Context, ruleIDs []string) ([]upgradeCandidate, error) {
	installed, err := e.rules.List(ctx, rule.ListFilter{RuleIDs: ruleIDs, PrebuiltOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed rules: %w", err)
	}
	if len(installed) == 0 {
		return nil, nil
	}

	ids := make([]string, len(installed))
	for i, r := range installed {
		ids[i] = r.RuleID
	}
	latest, err := e.latestByRuleID(ctx, ids...)
	if err != nil {
		return nil, err
	}

	var out []upgradeCandidate
	for _, r := range installed {
		target, ok := latest[r.RuleID]
		if !ok || target.Version <= r.Version() {
			continue
		}
		out = append(out, upgradeCandidate{current: r, target: target})
	}
	return out, nil
}

// ReviewUpgrade computes the three-way diff of every upgradable rule without
// changing anything.
func (e *Engine) ReviewUpgrade(ctx context.Context, req upgrade.ReviewRequest) (resp *upgrade.ReviewResponse, err error) {
	ctx, span, done := e.startBatch(ctx, OpReviewUpgrade)
	defer func() { telemetry.Finish(span, err) }()

	cands, err := e.candidates(ctx, req.RuleIDs)
	if err != nil {
		return nil, err
	}

	type reviewed struct {
		info upgrade.RuleUpgradeInfo
		err  error
	}
	results, err := forEach(ctx, e.concurrency, cands, func(ctx context.Context, c upgradeCandidate) reviewed {
		base, err := e.assetAt(ctx, c.current.RuleID, c.current.Version())
		if err != nil {
			return reviewed{err: fmt.Errorf("failed to load base asset of %s: %w", c.current.RuleID, err)}
		}
		d := diff.CalculateForType(diff.RuleVersions(base, c.current, c.target), c.target.Type())
		for _, f := range d.Conflicts() {
			e.metrics.RecordFieldConflict(ctx, f, string(d.Fields[f].Conflict))
		}
		return reviewed{info: upgrade.RuleUpgradeInfo{
			ID:          c.current.ID,
			RuleID:      c.current.RuleID,
			Revision:    c.current.Revision,
			CurrentRule: c.current,
			TargetRule:  c.target,
			Diff:        d,
		}}
	})
	if err != nil {
		return nil, err
	}

	infos := make([]upgrade.RuleUpgradeInfo, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		infos = append(infos, r.info)
	}

	skipped, err := e.unreviewed(ctx, req.RuleIDs, infos)
	if err != nil {
		return nil, err
	}

	done(len(infos))
	return &upgrade.ReviewResponse{Rules: infos, Stats: upgrade.NewReviewStats(infos), Skipped: skipped}, nil
}

// unreviewed reports the requested rule ids missing from infos, in request
// order.
func (e *Engine) unreviewed(ctx context.Context, ruleIDs []string, infos []upgrade.RuleUpgradeInfo) ([]batch.Skipped, error) {
	seen := make(map[string]bool, len(ruleIDs))
	for _, info := range infos {
		seen[info.RuleID] = true
	}
	var missing []string
	for _, id := range ruleIDs {
		if !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	installed, err := e.rules.List(ctx, rule.ListFilter{RuleIDs: missing, PrebuiltOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed rules: %w", err)
	}
	present := make(map[string]bool, len(installed))
	for _, r := range installed {
		present[r.RuleID] = true
	}

	out := make([]batch.Skipped, len(missing))
	for i, id := range missing {
		out[i] = batch.Skipped{RuleID: id, Reason: batch.SkipRuleNotInstalled}
		if present[id] {
			out[i].Reason = batch.SkipRuleUpToDate
		}
	}
	return out, nil
}

// upgradeItem is one rule of a perform request. current and target are
// preloaded in ALL_RULES mode.
type upgradeItem struct {
	spec    upgrade.RuleSpec
	current *rule.Rule
	target  *rule.Asset
}

// PerformUpgrade upgrades rules. Request-level problems return an error;
// per-rule failures are reported in the response and never abort the batch.
func (e *Engine) PerformUpgrade(ctx context.Context, req upgrade.PerformRequest) (resp *upgrade.PerformResponse, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.PickVersion = e.pickDefault(req.PickVersion)

	ctx, span, done := e.startBatch(ctx, OpPerformUpgrade,
		telemetry.String("mode", string(req.Mode)),
		telemetry.String("pick_version", string(req.PickVersion)),
		telemetry.Bool("dry_run", req.DryRun),
	)
	defer func() { telemetry.Finish(span, err) }()

	var items []upgradeItem
	switch req.Mode {
	case upgrade.ModeAllRules:
		cands, err := e.candidates(ctx, nil)
		if err != nil {
			return nil, err
		}
		for _, c := range cands {
			items = append(items, upgradeItem{
				spec: upgrade.RuleSpec{
					RuleID:   c.current.RuleID,
					Revision: c.current.Revision,
					Version:  c.target.Version,
				},
				current: c.current,
				target:  c.target,
			})
		}
	case upgrade.ModeSpecificRules:
		for _, spec := range req.Rules {
			items = append(items, upgradeItem{spec: spec})
		}
	}

	outcomes, err := forEach(ctx, e.concurrency, items, func(ctx context.Context, it upgradeItem) batch.Outcome[*rule.Rule] {
		return e.upgradeRule(ctx, req, it)
	})
	if err != nil {
		return nil, err
	}

	c := batch.NewCollector[*rule.Rule]()
	for _, o := range outcomes {
		c.Add(o)
	}
	resp = upgrade.NewPerformResponse(c)

	span.SetAttributes(
		telemetry.Int("succeeded", resp.Summary.Succeeded),
		telemetry.Int("failed", resp.Summary.Failed),
	)
	done(resp.Summary.Total)
	return resp, nil
}

func (e *Engine) upgradeRule(ctx context.Context, req upgrade.PerformRequest, it upgradeItem) batch.Outcome[*rule.Rule] {
	ruleID := it.spec.RuleID
	lc := e.lifecycle(ruleID)
	defer lc.Stop()

	out, skip, name, err := e.upgradeSteps(ctx, req, it, lc)
	switch {
	case err != nil:
		if !lc.IsTerminal() {
			_ = lc.Fail(err)
		}
		e.metrics.RecordRuleFailed(ctx, OpPerformUpgrade)
		e.warn().Add(logging.RuleID(ruleID)).Failed(err).Msg("rule upgrade failed")
		return batch.Outcome[*rule.Rule]{Err: err, Rule: batch.ErrorRule{ID: ruleID, Name: name}}
	case skip != nil:
		e.metrics.RecordRuleSkipped(ctx, OpPerformUpgrade, string(skip.Reason))
		return batch.Outcome[*rule.Rule]{Skip: skip}
	}

	e.metrics.RecordRuleUpgraded(ctx, string(out.Type()), req.DryRun)
	e.info().
		Rule(ruleID, out.Revision).
		Add(logging.TargetVersion(out.Version())).
		Add(logging.DryRun(req.DryRun)).
		Msg("rule upgraded")
	return batch.Outcome[*rule.Rule]{Value: out}
}

// upgradeSteps drives one rule through its lifecycle. name is the rule name
// when known, for error reporting.
func (e *Engine) upgradeSteps(ctx context.Context, req upgrade.PerformRequest, it upgradeItem, lc *statemachine.Interpreter) (out *rule.Rule, skip *batch.Skipped, name string, err error) {
	spec := it.spec

	current := it.current
	if current == nil {
		current, err = e.rules.GetByRuleID(ctx, spec.RuleID)
		if errors.Is(err, rule.ErrRuleNotFound) {
			return nil, nil, "", &upgrade.RuleNotFoundError{RuleID: spec.RuleID}
		}
		if err != nil {
			return nil, nil, "", err
		}
		if !current.IsPrebuilt() {
			return nil, nil, current.Name(), &upgrade.RuleNotFoundError{RuleID: spec.RuleID}
		}
	}
	name = current.Name()

	if current.Revision != spec.Revision {
		return nil, nil, name, &upgrade.RevisionMismatchError{RuleID: spec.RuleID, Expected: spec.Revision, Actual: current.Revision}
	}

	target := it.target
	if target == nil {
		target, err = e.assets.Get(ctx, spec.RuleID, spec.Version)
		if errors.Is(err, rule.ErrAssetNotFound) {
			return nil, nil, name, &upgrade.AssetNotFoundError{RuleID: spec.RuleID, Version: spec.Version}
		}
		if err != nil {
			return nil, nil, name, err
		}
	}

	if current.Version() >= target.Version {
		skipped := &batch.Skipped{RuleID: spec.RuleID, Reason: batch.SkipRuleUpToDate}
		if err := lc.Skip(string(skipped.Reason)); err != nil {
			return nil, nil, name, err
		}
		return nil, skipped, name, nil
	}

	base, err := e.assetAt(ctx, spec.RuleID, current.Version())
	if err != nil {
		return nil, nil, name, err
	}

	res, err := upgrade.Merge(upgrade.MergeInput{
		Base:    base,
		Current: current,
		Target:  target,
		Chain:   req.Chain(spec),
	})
	if err != nil {
		if isResolutionError(err) {
			_ = lc.Diffed()
		}
		return nil, nil, name, err
	}
	if err := lc.Diffed(); err != nil {
		return nil, nil, name, err
	}
	for _, f := range res.Diff.Conflicts() {
		e.metrics.RecordFieldConflict(ctx, f, string(res.Diff.Fields[f].Conflict))
	}
	if err := lc.Resolved(); err != nil {
		return nil, nil, name, err
	}

	out = res.Rule
	if req.DryRun {
		if err := lc.Transition(statemachine.StateApplied, "dry_run"); err != nil {
			return nil, nil, name, err
		}
		return out, nil, name, nil
	}

	out.UpdatedAt = e.now()
	if err := e.rules.Update(ctx, out, current.Revision); err != nil {
		if errors.Is(err, rule.ErrRevisionConflict) {
			actual := current.Revision
			if latest, gerr := e.rules.GetByRuleID(ctx, spec.RuleID); gerr == nil {
				actual = latest.Revision
			}
			return nil, nil, name, &upgrade.RevisionMismatchError{RuleID: spec.RuleID, Expected: spec.Revision, Actual: actual}
		}
		return nil, nil, name, fmt.Errorf("failed to update rule %s: %w", spec.RuleID, err)
	}
	if err := lc.Applied(); err != nil {
		return nil, nil, name, err
	}
	return out, nil, name, nil
}

// isResolutionError reports whether err arose while resolving field values,
// after the diff was computed.
func isResolutionError(err error) bool {
	return errors.Is(err, upgrade.ErrNonSolvableConflict) ||
		errors.Is(err, upgrade.ErrMissingBaseVersion) ||
		errors.Is(err, upgrade.ErrRuleTypeChange)
}
