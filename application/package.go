package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/infrastructure/logging"
)

// UpdatePackage fetches a prebuilt rule package and saves the asset versions
// the store does not have yet. Existing (rule_id, version) pairs are kept
// untouched.
func (e *Engine) UpdatePackage(ctx context.Context, src pack.Source) (res *pack.UpdateResult, err error) {
	ctx, span, done := e.startBatch(ctx, OpUpdatePackage, telemetry.String("source", src.Name()))
	defer func() { telemetry.Finish(span, err) }()

	p, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package from %s: %w", src.Name(), err)
	}
	res, err = e.applyPackage(ctx, src.Name(), p)
	if err != nil {
		return nil, err
	}
	done(res.Fetched)
	return res, nil
}

func (e *Engine) applyPackage(ctx context.Context, source string, p *pack.Pack) (*pack.UpdateResult, error) {
	res := &pack.UpdateResult{Package: p.Name, Version: p.Version, Fetched: len(p.Assets)}

	known := make(map[string]map[int]struct{})
	for _, id := range p.RuleIDs() {
		versions, err := e.assets.Versions(ctx, id)
		if err != nil && !errors.Is(err, rule.ErrAssetNotFound) {
			return nil, fmt.Errorf("failed to list versions of %s: %w", id, err)
		}
		set := make(map[int]struct{}, len(versions))
		for _, v := range versions {
			set[v] = struct{}{}
		}
		known[id] = set
	}

	var fresh []*rule.Asset
	for _, a := range p.Assets {
		if _, ok := known[a.RuleID][a.Version]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, a)
	}

	if len(fresh) > 0 {
		if err := e.assets.Save(ctx, fresh...); err != nil {
			return nil, fmt.Errorf("failed to save assets: %w", err)
		}
	}
	res.Saved = len(fresh)

	if e.invalidator != nil {
		if err := e.invalidator.Invalidate(ctx); err != nil {
			e.warn().
				Add(logging.Source(source)).
				Failed(err).
				Msg("asset cache invalidation failed")
		}
	}

	e.metrics.RecordPackageUpdate(ctx, source, res.Saved)
	e.info().
		Add(logging.Source(source)).
		Add(logging.Str("package", p.Name)).
		Add(logging.Count("saved", res.Saved)).
		Add(logging.Count("skipped", res.Skipped)).
		Msg("package updated")
	return res, nil
}

// WatchPackage applies every package the watcher reports until ctx is done.
// onUpdate, when not nil, receives each result or failure.
func (e *Engine) WatchPackage(ctx context.Context, w pack.Watcher, onUpdate func(*pack.UpdateResult, error)) error {
	return w.Watch(ctx, func(p *pack.Pack, err error) {
		var res *pack.UpdateResult
		if err == nil {
			res, err = e.applyPackage(ctx, w.Name(), p)
		}
		if err != nil {
			e.warn().
				Add(logging.Source(w.Name())).
				Failed(err).
				Msg("package watch update failed")
		}
		if onUpdate != nil {
			onUpdate(res, err)
		}
	})
}
