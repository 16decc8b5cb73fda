package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ruleup/domain/diff"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
	"github.com/felixgeelhaar/ruleup/infrastructure/textdiff"
	api "github.com/felixgeelhaar/ruleup/interfaces/api"
)

func (a *App) newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade installed prebuilt rules",
	}
	cmd.AddCommand(a.newUpgradeReviewCmd(), a.newUpgradePerformCmd())
	return cmd
}

func (a *App) newUpgradeReviewCmd() *cobra.Command {
	var (
		showDiff   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "review [rule_id...]",
		Short: "Show installed rules with a newer package version",
		Long: `Show installed prebuilt rules that have a newer version in the package,
with the number of changed and conflicting fields per rule.

Examples:
  ruleup upgrade review -c ruleup.yaml
  ruleup upgrade review -c ruleup.yaml 9a1a2dae --show-diff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *api.Runtime) error {
				resp, err := rt.Engine.ReviewUpgrade(cmd.Context(), upgrade.ReviewRequest{RuleIDs: args})
				if err != nil {
					return err
				}
				if jsonOutput {
					return a.printJSON(resp)
				}
				a.printReview(resp, showDiff)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showDiff, "show-diff", false, "Print a diff of every changed field")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) printReview(resp *upgrade.ReviewResponse, showDiff bool) {
	s := resp.Stats
	_, _ = fmt.Fprintf(a.stdout, "Rules to upgrade: %d (%d with conflicts, %d non-solvable)\n",
		s.NumRulesToUpgradeTotal, s.NumRulesWithConflicts, s.NumRulesWithNonSolvableConflicts)
	a.printSkipped(resp.Skipped)

	for _, info := range resp.Rules {
		d := info.Diff
		_, _ = fmt.Fprintf(a.stdout, "\n%s  %s  v%d -> v%d (revision %d)\n",
			info.RuleID, info.CurrentRule.Name(), info.CurrentRule.Version(), info.TargetRule.Version, info.Revision)
		_, _ = fmt.Fprintf(a.stdout, "  %d fields with updates, %d conflicts, %d non-solvable\n",
			d.NumFieldsWithUpdates, d.NumFieldsWithConflicts, d.NumFieldsWithNonSolvableConflicts)

		for _, name := range d.Changed() {
			fd, _ := d.Field(name)
			_, _ = fmt.Fprintf(a.stdout, "  %-28s %s%s\n", name, fd.DiffOutcome, conflictMarker(fd.Conflict))
			if showDiff {
				_, _ = fmt.Fprint(a.stdout, indent(textdiff.RenderValues(fd.Current, fd.Target), "      "))
			}
		}
	}
}

func conflictMarker(c diff.Conflict) string {
	if c == diff.NoConflict {
		return ""
	}
	return fmt.Sprintf("  [%s conflict]", c)
}

func (a *App) newUpgradePerformCmd() *cobra.Command {
	var (
		flags      upgradeFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "perform",
		Short: "Upgrade installed prebuilt rules",
		Long: `Upgrade installed prebuilt rules to their latest package version.

Without --rule every upgradable rule is upgraded (ALL_RULES). Name rules
with --rule rule_id:revision:version, using the revision and version shown
by 'upgrade review', to upgrade only those and to override fields.

The pick version selects which value each field takes: BASE, CURRENT,
TARGET or MERGED (default). Field picks override the request pick;
--resolve installs a hand-picked JSON value for one field.

Examples:
  ruleup upgrade perform -c ruleup.yaml
  ruleup upgrade perform -c ruleup.yaml --pick-version TARGET --dry-run
  ruleup upgrade perform -c ruleup.yaml --rule 9a1a2dae:2:5 \
    --field 9a1a2dae.query=TARGET --resolve '9a1a2dae.tags=["a","b"]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}

			return a.withRuntime(cmd.Context(), func(rt *api.Runtime) error {
				resp, err := rt.Engine.PerformUpgrade(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := a.printJSON(resp); err != nil {
						return err
					}
					return errorsResult(resp.Errors)
				}

				verb := "upgraded"
				if req.DryRun {
					verb = "would be upgraded"
				}
				a.printSummary(verb, resp.Summary, resp.Errors)
				for _, r := range resp.Results.Updated {
					_, _ = fmt.Fprintf(a.stdout, "  ^ %s@%d  %s (revision %d)\n", r.RuleID, r.Version(), r.Name(), r.Revision)
				}
				a.printSkipped(resp.Results.Skipped)
				return errorsResult(resp.Errors)
			})
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "", "ALL_RULES or SPECIFIC_RULES (default depends on --rule)")
	cmd.Flags().StringVar(&flags.pick, "pick-version", "", "Pick version for all fields (BASE, CURRENT, TARGET, MERGED)")
	cmd.Flags().StringArrayVar(&flags.rules, "rule", nil, "Rule to upgrade as rule_id:revision:version (repeatable)")
	cmd.Flags().StringArrayVar(&flags.fields, "field", nil, "Field pick as rule_id.field=PICK (repeatable)")
	cmd.Flags().StringArrayVar(&flags.resolves, "resolve", nil, "Resolved field value as rule_id.field=<json> (repeatable)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Compute the upgrade without saving")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
