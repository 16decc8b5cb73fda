// Package cli provides the ruleup command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ruleup"
	api "github.com/felixgeelhaar/ruleup/interfaces/api"
)

// Build information set at build time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	strictEnv  bool
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "ruleup",
		Short: "Prebuilt detection rule upgrades",
		Long: `ruleup installs prebuilt detection rules from a rule package and upgrades
installed rules to newer package versions with a three-way diff between the
installed version, the user's customizations and the new stock version.

Conflicting customizations are never overwritten silently: pick the version
to keep per rule or per field, or resolve the value by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file")
	app.root.PersistentFlags().BoolVar(&app.strictEnv, "strict-env", false, "Fail on unset environment variables in the configuration")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newStatusCmd(),
		app.newPackageCmd(),
		app.newInstallCmd(),
		app.newUpgradeCmd(),
		app.newRuleCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig loads the configuration named by --config.
func (a *App) loadConfig() (*api.Config, error) {
	cfg, err := api.LoadConfig(a.configPath, api.ConfigWithStrictEnv(a.strictEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withRuntime builds the runtime for one command and closes it afterwards.
func (a *App) withRuntime(ctx context.Context, fn func(*api.Runtime) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	rt, err := api.Build(ctx, cfg, api.WithLogOutput(a.stderr))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "ruleup version %s\n", ruleup.Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
