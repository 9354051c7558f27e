package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/internal/config"
	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/patterns/graph"
	"github.com/leofalp/devforge/providers/observability"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Requirements     string
	RequirementsFile string
	RunID            string
	Interactive      bool
	MaxParallel      int
	OutputDir        string
	NoArtifacts      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a project from a description",
		Long: `Run the full agent workflow for a project description.

Every finished step is checkpointed. Press Ctrl+C to stop launching new steps;
steps already running finish and checkpoint, and the run can be continued
later with "devforge resume <run-id>".

Exit codes: 0 completed, 1 failed, 2 cancelled.`,
		Example: `  devforge run --requirements "a todo app with a React frontend and a Go API"
  devforge run -f requirements.md --backend sqlite --interactive`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Requirements, "requirements", "r", "", "project description")
	cmd.Flags().StringVarP(&opts.RequirementsFile, "requirements-file", "f", "", "read the project description from a file")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run ID (default: generated UUIDv7)")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "ask for approval before generating code")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 0, "maximum concurrently running steps (0 = config value)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "artifact directory (default: config output_dir)")
	cmd.Flags().BoolVar(&opts.NoArtifacts, "no-artifacts", false, "do not write generated files")
	cmd.MarkFlagsMutuallyExclusive("requirements", "requirements-file")

	return cmd
}

func (o *RunOptions) requirements() (string, error) {
	text := o.Requirements
	if o.RequirementsFile != "" {
		raw, err := os.ReadFile(o.RequirementsFile)
		if err != nil {
			return "", WrapExitError(ExitFailure, "read requirements", err)
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return "", NewExitError(ExitFailure, "no requirements given: use --requirements or --requirements-file")
	}
	return text, nil
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	requirements, err := opts.requirements()
	if err != nil {
		return err
	}

	sess, err := openSession(cmd, opts.RootOptions, opts.MaxParallel, opts.Interactive)
	if err != nil {
		return err
	}
	defer sess.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := sess.manager.Start(ctx, sess.graph, pipeline.InitialState(requirements), opts.RunID)
	if err != nil {
		return WrapExitError(ExitFailure, "start run", err)
	}
	return sess.finish(ctx, cmd.OutOrStdout(), stream, opts.outputDir(sess.cfg), opts.NoArtifacts)
}

func (o *RunOptions) outputDir(cfg *config.Config) string {
	if o.OutputDir != "" {
		return o.OutputDir
	}
	return cfg.OutputDir
}

// session bundles everything a run or resume needs.
type session struct {
	cfg      *config.Config
	observer observability.Provider
	store    checkpoint.Store
	graph    *graph.Graph
	manager  *graph.Manager
	close    func()
}

func openSession(cmd *cobra.Command, opts *RootOptions, maxParallel int, interactive bool) (*session, error) {
	cfg, err := opts.loadConfig(true)
	if err != nil {
		return nil, err
	}
	observer := newObserver(cfg, cmd.ErrOrStderr())

	model, err := opts.newModel(cfg, observer)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "configure model", err)
	}

	approver := pipeline.Approver(pipeline.AutoApprove)
	if interactive {
		approver = PromptApprover(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	g, err := pipeline.New(model,
		pipeline.WithApprover(approver),
		pipeline.WithTemperature(cfg.Temperature),
		pipeline.WithMaxTokens(cfg.MaxTokens),
	).Graph()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "build workflow", err)
	}

	store, closeStore, err := openStore(cmd.Context(), cfg.Checkpoint)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open checkpoint store", err)
	}

	if maxParallel <= 0 {
		maxParallel = cfg.MaxParallel
	}
	execOpts := []graph.ExecutorOption{
		graph.WithCheckpointStore(store),
		graph.WithObserver(observer),
	}
	if maxParallel > 0 {
		execOpts = append(execOpts, graph.WithMaxConcurrency(maxParallel))
	}

	return &session{
		cfg:      cfg,
		observer: observer,
		store:    store,
		graph:    g,
		manager:  graph.NewManager(execOpts...),
		close:    closeStore,
	}, nil
}

// finish renders the stream until the run ends, writes the artifacts of a
// completed run and maps the outcome to an exit code.
func (s *session) finish(ctx context.Context, w io.Writer, stream *graph.RunStream, outputDir string, noArtifacts bool) error {
	out := &lockedWriter{w: w}

	var eg errgroup.Group
	eg.Go(func() error {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, warnStyle.Render("interrupt received: waiting for running steps to checkpoint..."))
			stream.Cancel()
		case <-stream.Done():
		}
		return nil
	})
	eg.Go(func() error {
		for ev, err := range stream.Iter() {
			if err != nil {
				return err
			}
			if line, ok := renderEvent(ev); ok {
				fmt.Fprintln(out, line)
			}
		}
		return nil
	})
	// The event stream ends with the run error when the run did not complete.
	runErr := eg.Wait()

	res, err := stream.Result()
	if runErr == nil {
		runErr = err
	}
	if res == nil {
		return WrapExitError(ExitFailure, "run", runErr)
	}

	var artifacts *pipeline.Artifacts
	var writeErr error
	if res.Status == graph.RunCompleted && !noArtifacts && res.State[pipeline.FieldApproval] == string(pipeline.Approved) {
		artifacts, writeErr = pipeline.WriteArtifacts(outputDir, res.State)
		if writeErr != nil {
			s.observer.Warn(ctx, "Some artifacts were not written", observability.Error(writeErr))
		}
	}
	fmt.Fprintln(out, renderSummary(res, artifacts))

	switch res.Status {
	case graph.RunCompleted:
		if artifacts == nil && writeErr != nil {
			return WrapExitError(ExitFailure, "write artifacts", writeErr)
		}
		return nil
	case graph.RunCancelled:
		return WrapExitError(ExitCancelled, "run "+res.RunID+" cancelled", runErr)
	default:
		if runErr == nil {
			runErr = errors.New(string(res.Status))
		}
		return WrapExitError(ExitFailure, "run "+res.RunID+" failed", runErr)
	}
}
