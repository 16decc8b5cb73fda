package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
)

// Status summarizes installed and available prebuilt rules.
type Status struct {
	NumPrebuiltRulesInstalled      int `json:"num_prebuilt_rules_installed"`
	NumPrebuiltRulesToInstall      int `json:"num_prebuilt_rules_to_install"`
	NumPrebuiltRulesToUpgrade      int `json:"num_prebuilt_rules_to_upgrade"`
	NumPrebuiltRulesTotalInPackage int `json:"num_prebuilt_rules_total_in_package"`
}

// Status reports the prebuilt rules status.
func (e *Engine) Status(ctx context.Context) (st *Status, err error) {
	ctx, span := e.tracer.StartSpan(ctx, OpStatus)
	defer func() { telemetry.Finish(span, err) }()

	installed, err := e.rules.List(ctx, rule.ListFilter{PrebuiltOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list installed rules: %w", err)
	}
	toInstall, err := e.installable(ctx)
	if err != nil {
		return nil, err
	}
	toUpgrade, err := e.candidates(ctx, nil)
	if err != nil {
		return nil, err
	}
	total, err := e.assets.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	return &Status{
		NumPrebuiltRulesInstalled:      len(installed),
		NumPrebuiltRulesToInstall:      len(toInstall),
		NumPrebuiltRulesToUpgrade:      len(toUpgrade),
		NumPrebuiltRulesTotalInPackage: int(total),
	}, nil
}
