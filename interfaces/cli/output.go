package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/ruleup/domain/batch"
)

// ErrRulesFailed is returned when a batch command completed with per-rule
// errors.
var ErrRulesFailed = errors.New("some rules failed")

func (a *App) printSummary(verb string, s batch.Summary, errs []batch.ErrorEntry) {
	_, _ = fmt.Fprintf(a.stdout, "%d %s, %d skipped, %d failed (of %d)\n", s.Succeeded, verb, s.Skipped, s.Failed, s.Total)
	for _, e := range errs {
		_, _ = fmt.Fprintf(a.stdout, "  ! %s\n", e.Message)
		for _, r := range e.Rules {
			if r.Name != "" {
				_, _ = fmt.Fprintf(a.stdout, "      %s (%s)\n", r.ID, r.Name)
				continue
			}
			_, _ = fmt.Fprintf(a.stdout, "      %s\n", r.ID)
		}
	}
}

func (a *App) printSkipped(skipped []batch.Skipped) {
	for _, s := range skipped {
		_, _ = fmt.Fprintf(a.stdout, "  = %s  %s\n", s.RuleID, s.Reason)
	}
}

// errorsResult turns per-rule errors into a non-zero exit.
func errorsResult(errs []batch.ErrorEntry) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d distinct errors", ErrRulesFailed, len(errs))
}

func indent(s, prefix string) string {
	if s == "" {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	var sb strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		sb.WriteString(prefix)
		sb.WriteString(l)
	}
	return sb.String()
}
