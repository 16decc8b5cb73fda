package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ruleup/domain/pack"
	api "github.com/felixgeelhaar/ruleup/interfaces/api"
)

func (a *App) newPackageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Manage the prebuilt rule package",
	}
	cmd.AddCommand(a.newPackageUpdateCmd())
	return cmd
}

func (a *App) newPackageUpdateCmd() *cobra.Command {
	var (
		watch      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Fetch the configured package into the asset store",
		Long: `Fetch the prebuilt rule package from the configured source and store
every asset version that is not known yet.

With --watch the command keeps running and applies the package again
whenever the source changes (filesystem sources only).

Examples:
  ruleup package update -c ruleup.yaml
  ruleup package update -c ruleup.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withRuntime(ctx, func(rt *api.Runtime) error {
				src, err := rt.Source(ctx)
				if err != nil {
					return err
				}

				res, err := rt.Engine.UpdatePackage(ctx, src)
				if err != nil {
					return err
				}
				if err := a.printUpdate(res, jsonOutput); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				w, ok := src.(pack.Watcher)
				if !ok {
					return fmt.Errorf("%w: %s", pack.ErrUnsupportedWatch, src.Name())
				}
				err = rt.Engine.WatchPackage(ctx, w, func(res *pack.UpdateResult, err error) {
					if err != nil {
						_, _ = fmt.Fprintf(a.stderr, "package update failed: %v\n", err)
						return
					}
					_ = a.printUpdate(res, jsonOutput)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep applying the package when the source changes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) printUpdate(res *pack.UpdateResult, jsonOutput bool) error {
	if jsonOutput {
		return a.printJSON(res)
	}
	name := res.Package
	if res.Version != "" {
		name += " " + res.Version
	}
	_, _ = fmt.Fprintf(a.stdout, "Package %s: %d assets fetched, %d saved, %d already known\n",
		name, res.Fetched, res.Saved, res.Skipped)
	return nil
}
