package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ruleup/domain/install"
	api "github.com/felixgeelhaar/ruleup/interfaces/api"
)

func (a *App) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install prebuilt rules",
	}
	cmd.AddCommand(a.newInstallReviewCmd(), a.newInstallPerformCmd())
	return cmd
}

func (a *App) newInstallReviewCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List prebuilt rules that are not installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *api.Runtime) error {
				resp, err := rt.Engine.ReviewInstall(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return a.printJSON(resp)
				}
				_, _ = fmt.Fprintf(a.stdout, "Rules to install: %d\n", resp.Stats.NumRulesToInstall)
				for _, asset := range resp.Rules {
					_, _ = fmt.Fprintf(a.stdout, "  %s@%d  %s (%s)\n", asset.RuleID, asset.Version, asset.Name(), asset.Type())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) newInstallPerformCmd() *cobra.Command {
	var (
		ruleSpecs  []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "perform",
		Short: "Install prebuilt rules",
		Long: `Install prebuilt rules. Without --rule-id every rule that is not
installed yet is installed at its latest version.

Examples:
  ruleup install perform -c ruleup.yaml
  ruleup install perform -c ruleup.yaml --rule-id 9a1a2dae@3 --rule-id f2b5e1c3@1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := install.PerformRequest{Mode: install.ModeAllRules}
			for _, s := range ruleSpecs {
				spec, err := parseVersionSpecifier(s)
				if err != nil {
					return err
				}
				req.Mode = install.ModeSpecificRules
				req.Rules = append(req.Rules, spec)
			}

			return a.withRuntime(cmd.Context(), func(rt *api.Runtime) error {
				resp, err := rt.Engine.PerformInstall(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return a.printJSON(resp)
				}
				a.printSummary("installed", resp.Summary, resp.Errors)
				for _, r := range resp.Results.Created {
					_, _ = fmt.Fprintf(a.stdout, "  + %s@%d  %s\n", r.RuleID, r.Version(), r.Name())
				}
				a.printSkipped(resp.Results.Skipped)
				return errorsResult(resp.Errors)
			})
		},
	}

	cmd.Flags().StringArrayVar(&ruleSpecs, "rule-id", nil, "Rule to install as rule_id@version (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

