package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a ruleup configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Known storage, cache and package source drivers
  - Settings each driver requires
  - Environment variable references (with --strict-env)

Examples:
  ruleup validate -c ruleup.yaml
  ruleup validate -c ruleup.yaml --strict-env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath == "" {
				return fmt.Errorf("configuration file path is required (-c flag)")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
			if cfg.Name != "" {
				_, _ = fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
			}
			_, _ = fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
			_, _ = fmt.Fprintf(a.stdout, "  Storage: %s\n", cfg.Storage.Driver)
			_, _ = fmt.Fprintf(a.stdout, "  Cache: %s\n", cfg.Cache.Driver)
			_, _ = fmt.Fprintf(a.stdout, "  Package source: %s\n", cfg.Package.Source)
			_, _ = fmt.Fprintf(a.stdout, "  Concurrency: %d\n", cfg.Engine.Concurrency)
			_, _ = fmt.Fprintf(a.stdout, "  Default pick version: %s\n", cfg.Engine.DefaultPickVersion)
			if cfg.Telemetry.Tracing != "" && cfg.Telemetry.Tracing != "noop" {
				_, _ = fmt.Fprintf(a.stdout, "  Tracing: %s\n", cfg.Telemetry.Tracing)
			}
			return nil
		},
	}
}
