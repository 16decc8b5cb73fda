package upgrade

import (
	"github.com/felixgeelhaar/ruleup/domain/batch"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// PerformResults lists the upgraded and skipped rules.
type PerformResults struct {
	Updated []*rule.Rule    `json:"updated"`
	Skipped []batch.Skipped `json:"skipped"`
}

// PerformResponse is the result of a perform request. Per-rule failures are
// reported in Errors and never abort the batch.
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
			Updated: c.Succeeded(),
			Skipped: c.Skipped(),
		},
		Errors: c.Errors(),
	}
}

// NewReviewStats aggregates rule reviews.
func NewReviewStats(infos []RuleUpgradeInfo) ReviewStats {
	stats := ReviewStats{NumRulesToUpgradeTotal: len(infos)}
	tags := make([][]string, 0, len(infos))
	for _, info := range infos {
		if info.Diff.HasConflict {
			stats.NumRulesWithConflicts++
		}
		if info.Diff.HasNonSolvableConflict {
			stats.NumRulesWithNonSolvableConflicts++
		}
		tags = append(tags, info.CurrentRule.Tags())
	}
	stats.Tags = batch.CollectTags(tags...)
	return stats
}
