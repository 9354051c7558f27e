package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leofalp/devforge/core/checkpoint"
)

// ResumeOptions holds flags for the resume command.
type ResumeOptions struct {
	*RootOptions
	Interactive bool
	MaxParallel int
	OutputDir   string
	NoArtifacts bool
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue an interrupted run from its checkpoints",
		Long: `Continue a run from its latest checkpoint.

Steps that already committed are not executed again; the workflow picks up
at the steps their outgoing edges activated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "ask for approval if the approval step has not run yet")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 0, "maximum concurrently running steps (0 = config value)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "artifact directory (default: config output_dir)")
	cmd.Flags().BoolVar(&opts.NoArtifacts, "no-artifacts", false, "do not write generated files")

	return cmd
}

func runResume(cmd *cobra.Command, opts *ResumeOptions, runID string) error {
	sess, err := openSession(cmd, opts.RootOptions, opts.MaxParallel, opts.Interactive)
	if err != nil {
		return err
	}
	defer sess.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := sess.manager.Resume(ctx, sess.graph, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return WrapExitError(ExitFailure, "no checkpoints for run "+runID, err)
		}
		return WrapExitError(ExitFailure, "resume run", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = sess.cfg.OutputDir
	}
	return sess.finish(ctx, cmd.OutOrStdout(), stream, outputDir, opts.NoArtifacts)
}
