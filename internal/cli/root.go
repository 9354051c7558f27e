package cli

import (
	"github.com/spf13/cobra"

	"github.com/leofalp/devforge/internal/config"
	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/providers/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Backend    string
	LogLevel   string

	// Hooks replaced in tests.
	lookup   func(string) (string, bool)
	envFiles []string
	newModel func(cfg *config.Config, observer observability.Provider) (pipeline.Model, error)
}

// NewRootCommand creates the root command of the devforge CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{newModel: newInvoker})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devforge",
		Short: "devforge - autonomous multi-agent code generation",
		Long: "devforge turns a project description into generated code, tests and deployment\n" +
			"configuration by running a checkpointed workflow of model-backed agents.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./"+config.DefaultFile+" when present)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "checkpoint backend (memory|file|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewCheckpointsCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))

	return cmd
}
