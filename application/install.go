package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/install"
	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
)

// installable returns the latest assets whose rule_id is not installed.
func (e *Engine) installable(ctx context.Context) ([]*rule.Asset, error) {
	installed, err := e.rules.List(ctx, rule.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed rules: %w", err)
	}
	ids := make(map[string]struct{}, len(installed))
	for _, r := range installed {
		ids[r.RuleID] = struct{}{}
	}

	latest, err := e.assets.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest assets: %w", err)
	}
	var out []*rule.Asset
	for _, a := range latest {
		if _, ok := ids[a.RuleID]; !ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ReviewInstall lists the prebuilt rules available for installation.
func (e *Engine) ReviewInstall(ctx context.Context) (resp *install.ReviewResponse, err error) {
	ctx, span, done := e.startBatch(ctx, OpReviewInstall)
	defer func() { telemetry.Finish(span, err) }()

	assets, err := e.installable(ctx)
	if err != nil {
		return nil, err
	}
	done(len(assets))
	return install.NewReviewResponse(assets), nil
}

// PerformInstall installs prebuilt rules. In ALL_RULES mode every
// installable asset is installed at its latest version.
func (e *Engine) PerformInstall(ctx context.Context, req install.PerformRequest) (resp *install.PerformResponse, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span, done := e.startBatch(ctx, OpPerformInstall, telemetry.String("mode", string(req.Mode)))
	defer func() { telemetry.Finish(span, err) }()

	type item struct {
		spec  rule.VersionSpecifier
		asset *rule.Asset
	}
	var items []item
	switch req.Mode {
	case install.ModeAllRules:
		assets, err := e.installable(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			items = append(items, item{spec: a.Key(), asset: a})
		}
	case install.ModeSpecificRules:
		for _, spec := range req.Rules {
			items = append(items, item{spec: spec})
		}
	}

	outcomes, err := forEach(ctx, e.concurrency, items, func(ctx context.Context, it item) batch.Outcome[*rule.Rule] {
		return e.installRule(ctx, it.spec, it.asset)
	})
	if err != nil {
		return nil, err
	}

	c := batch.NewCollector[*rule.Rule]()
	for _, o := range outcomes {
		c.Add(o)
	}
	resp = install.NewPerformResponse(c)
	done(resp.Summary.Total)
	return resp, nil
}

func (e *Engine) installRule(ctx context.Context, spec rule.VersionSpecifier, a *rule.Asset) batch.Outcome[*rule.Rule] {
	fail := func(err error, name string) batch.Outcome[*rule.Rule] {
		e.metrics.RecordRuleFailed(ctx, OpPerformInstall)
		e.warn().Asset(spec.RuleID, spec.Version).Failed(err).Msg("rule install failed")
		return batch.Outcome[*rule.Rule]{Err: err, Rule: batch.ErrorRule{ID: spec.RuleID, Name: name}}
	}
	skip := func() batch.Outcome[*rule.Rule] {
		e.metrics.RecordRuleSkipped(ctx, OpPerformInstall, string(batch.SkipAlreadyInstalled))
		return batch.Outcome[*rule.Rule]{Skip: &batch.Skipped{RuleID: spec.RuleID, Reason: batch.SkipAlreadyInstalled}}
	}

	if a == nil {
		var err error
		a, err = e.assets.Get(ctx, spec.RuleID, spec.Version)
		if errors.Is(err, rule.ErrAssetNotFound) {
			return fail(&upgrade.AssetNotFoundError{RuleID: spec.RuleID, Version: spec.Version}, "")
		}
		if err != nil {
			return fail(err, "")
		}
	}

	_, err := e.rules.GetByRuleID(ctx, spec.RuleID)
	switch {
	case err == nil:
		return skip()
	case !errors.Is(err, rule.ErrRuleNotFound):
		return fail(err, a.Name())
	}

	r := rule.FromAsset(e.newID(), a, e.now())
	if err := e.rules.Create(ctx, r); err != nil {
		if errors.Is(err, rule.ErrRuleExists) {
			return skip()
		}
		return fail(fmt.Errorf("failed to install rule %s: %w", spec.RuleID, err), a.Name())
	}

	e.metrics.RecordRuleInstalled(ctx, string(r.Type()))
	e.info().Asset(r.RuleID, r.Version()).Msg("rule installed")
	return batch.Outcome[*rule.Rule]{Value: r}
}
