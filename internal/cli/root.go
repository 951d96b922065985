// Package cli implements the papply command.
package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/utkarsh5026/papply/apply"
	"github.com/utkarsh5026/papply/internal/config"
	"github.com/utkarsh5026/papply/internal/logging"
	"go.uber.org/zap"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

type rootOptions struct {
	configPath string
	logLevel   string
	plain      bool
}

// NewRootCommand builds the papply command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "papply",
		Short:         "Apply a function over a batch, sequentially or on a worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.plain {
				color.NoColor = true
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.plain, "plain", false, "disable colors and progress bars")

	cmd.AddCommand(newRunCommand(opts), newBenchCommand(opts))
	return cmd
}

// Execute runs the command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

// env is everything a subcommand needs after configuration is resolved.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	plan apply.Plan
}

func (e *env) shutdownTimeout() time.Duration {
	return e.cfg.Plan.ShutdownTimeout
}

// setup loads configuration, with overrides taken from the flags the user
// actually set, and builds the logger and plan.
func setup(root *rootOptions, overrides map[string]string) (*env, error) {
	if root.logLevel != "" {
		overrides["logging.level"] = root.logLevel
	}

	cfg, err := config.NewLoader().
		WithConfigPath(root.configPath).
		WithOverrides(overrides).
		Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	plan, err := cfg.ExecutionPlan(apply.WithPlanLogger(log))
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, plan: plan}, nil
}

// changed collects the flags set on the command line as config overrides.
func changed(cmd *cobra.Command, mapping map[string]string) map[string]string {
	out := make(map[string]string)
	for flag, path := range mapping {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			out[path] = f.Value.String()
		}
	}
	return out
}
