package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
	"github.com/felixgeelhaar/ruleup/infrastructure/logging"
)

// PatchRule applies a user customization to an installed rule. A nil value
// removes the field. The revision is incremented and the rule source
// recomputed against the asset at the installed version.
func (e *Engine) PatchRule(ctx context.Context, ruleID string, patch rule.Params) (out *rule.Rule, err error) {
	ctx, span := e.tracer.StartSpan(ctx, OpPatchRule, telemetry.String("rule_id", ruleID))
	defer func() { telemetry.Finish(span, err) }()

	for _, f := range []string{rule.FieldRuleID, rule.FieldType, rule.FieldVersion} {
		if _, ok := patch[f]; ok {
			return nil, fmt.Errorf("%w: field %s cannot be patched", ErrInvalidPatch, f)
		}
	}

	current, err := e.rules.GetByRuleID(ctx, ruleID)
	if errors.Is(err, rule.ErrRuleNotFound) {
		return nil, &upgrade.RuleNotFoundError{RuleID: ruleID}
	}
	if err != nil {
		return nil, err
	}

	merged := current.Params.Clone()
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	params, err := rule.NewParams(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	matching, err := e.assetAt(ctx, ruleID, current.Version())
	if err != nil {
		return nil, err
	}
	versions, err := e.assets.Versions(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset versions: %w", err)
	}

	out = current.Clone()
	out.Params = params
	out.Revision = current.Revision + 1
	out.Source = rule.CalculateSource(params, matching, len(versions) > 0)
	out.UpdatedAt = e.now()

	if err := e.rules.Update(ctx, out, current.Revision); err != nil {
		if errors.Is(err, rule.ErrRevisionConflict) {
			actual := current.Revision
			if latest, gerr := e.rules.GetByRuleID(ctx, ruleID); gerr == nil {
				actual = latest.Revision
			}
			return nil, &upgrade.RevisionMismatchError{RuleID: ruleID, Expected: current.Revision, Actual: actual}
		}
		return nil, fmt.Errorf("failed to update rule %s: %w", ruleID, err)
	}

	e.info().
		Rule(ruleID, out.Revision).
		Add(logging.Count("fields", len(patch))).
		Msg("rule patched")
	return out, nil
}
