// Package install defines requests and responses for installing prebuilt
// rules that are not installed yet.
package install

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// ErrInvalidRequest indicates a malformed install request.
var ErrInvalidRequest = errors.New("invalid install request")

// Mode selects which assets a perform request installs.
type Mode string

// Modes.
const (
	ModeAllRules      Mode = "ALL_RULES"
	ModeSpecificRules Mode = "SPECIFIC_RULES"
)

// PerformRequest asks to install prebuilt rules.
type PerformRequest struct {
	Mode  Mode                    `json:"mode"`
	Rules []rule.VersionSpecifier `json:"rules,omitempty"`
}

// Validate checks request-level constraints.
func (r PerformRequest) Validate() error {
	switch r.Mode {
	case ModeAllRules:
		if len(r.Rules) > 0 {
			return fmt.Errorf("%w: rules must be empty in %s mode", ErrInvalidRequest, ModeAllRules)
		}
	case ModeSpecificRules:
		if len(r.Rules) == 0 {
			return fmt.Errorf("%w: rules are required in %s mode", ErrInvalidRequest, ModeSpecificRules)
		}
		seen := make(map[string]struct{}, len(r.Rules))
		for _, spec := range r.Rules {
			if spec.RuleID == "" {
				return fmt.Errorf("%w: rule_id is required", ErrInvalidRequest)
			}
			if spec.Version <= 0 {
				return fmt.Errorf("%w: version of %s must be positive", ErrInvalidRequest, spec.RuleID)
			}
			if _, dup := seen[spec.RuleID]; dup {
				return fmt.Errorf("%w: duplicate rule_id %s", ErrInvalidRequest, spec.RuleID)
			}
			seen[spec.RuleID] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// PerformResults lists the installed and skipped rules.
type PerformResults struct {
	Created []*rule.Rule    `json:"created"`
	Skipped []batch.Skipped `json:"skipped"`
}

// PerformResponse is the result of an install request.
type PerformResponse struct {
	Summary batch.Summary      `json:"summary"`
	Results PerformResults     `json:"results"`
	Errors  []batch.ErrorEntry `json:"errors"`
}

// NewPerformResponse builds a response from collected outcomes.
func NewPerformResponse(c *batch.Collector[*rule.Rule]) *PerformResponse {
	return &PerformResponse{
		Summary: c.Summary(),
		Results: PerformResults{
			Created: c.Succeeded(),
			Skipped: c.Skipped(),
		},
		Errors: c.Errors(),
	}
}

// ReviewStats aggregates the installable assets.
type ReviewStats struct {
	NumRulesToInstall int      `json:"num_rules_to_install"`
	Tags              []string `json:"tags"`
}

// ReviewResponse lists the latest assets whose rule_id is not installed.
type ReviewResponse struct {
	Rules []*rule.Asset `json:"rules"`
	Stats ReviewStats   `json:"stats"`
}

// NewReviewResponse builds a review of installable assets.
func NewReviewResponse(assets []*rule.Asset) *ReviewResponse {
	if assets == nil {
		assets = []*rule.Asset{}
	}
	tags := make([][]string, 0, len(assets))
	for _, a := range assets {
		tags = append(tags, a.Tags())
	}
	return &ReviewResponse{
		Rules: assets,
		Stats: ReviewStats{
			NumRulesToInstall: len(assets),
			Tags:              batch.CollectTags(tags...),
		},
	}
}
