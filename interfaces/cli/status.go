package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/ruleup/interfaces/api"
)

func (a *App) newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show prebuilt rules status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *api.Runtime) error {
				st, err := rt.Engine.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return a.printJSON(st)
				}
				_, _ = fmt.Fprintf(a.stdout, "Prebuilt rules in package: %d\n", st.NumPrebuiltRulesTotalInPackage)
				_, _ = fmt.Fprintf(a.stdout, "Installed:                 %d\n", st.NumPrebuiltRulesInstalled)
				_, _ = fmt.Fprintf(a.stdout, "Available to install:      %d\n", st.NumPrebuiltRulesToInstall)
				_, _ = fmt.Fprintf(a.stdout, "Available to upgrade:      %d\n", st.NumPrebuiltRulesToUpgrade)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
