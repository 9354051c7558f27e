package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leofalp/devforge/core/checkpoint"
)

// NewCheckpointsCommand creates the checkpoints command group.
func NewCheckpointsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect and delete stored checkpoints",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list [run-id]",
		Short:         "List runs, or the checkpoints of one run",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(store checkpoint.Store) error {
				if len(args) == 0 {
					return listRuns(cmd, store)
				}
				return listCheckpoints(cmd, store, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "show <run-id> <node>",
		Short:         "Print one checkpoint as JSON",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(store checkpoint.Store) error {
				cp, err := store.Load(cmd.Context(), args[0], args[1])
				if err != nil {
					if errors.Is(err, checkpoint.ErrNotFound) {
						return WrapExitError(ExitFailure, fmt.Sprintf("no checkpoint for %s/%s", args[0], args[1]), err)
					}
					return err
				}
				raw, err := checkpoint.Encode(*cp)
				if err != nil {
					return err
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, raw, "", "  "); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <run-id>",
		Short:         "Delete every checkpoint of a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(store checkpoint.Store) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted checkpoints of "+args[0])
				return nil
			})
		},
	})

	return cmd
}

func withStore(cmd *cobra.Command, opts *RootOptions, fn func(checkpoint.Store) error) error {
	cfg, err := opts.loadConfig(false)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context(), cfg.Checkpoint)
	if err != nil {
		return WrapExitError(ExitFailure, "open checkpoint store", err)
	}
	defer closeStore()
	return fn(store)
}

func listRuns(cmd *cobra.Command, store checkpoint.Store) error {
	out := cmd.OutOrStdout()
	runs, err := store.Runs(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no runs"))
		return nil
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%-38s %5s  %-10s %s", "RUN", "STEPS", "LAST", "UPDATED")))
	for _, runID := range runs {
		nodes, err := store.List(cmd.Context(), runID)
		if err != nil {
			return err
		}
		latest, err := store.Latest(cmd.Context(), runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-38s %5d  %-10s %s\n", runID, len(nodes), latest.Node, latest.Timestamp.Format(time.DateTime))
	}
	return nil
}

func listCheckpoints(cmd *cobra.Command, store checkpoint.Store, runID string) error {
	out := cmd.OutOrStdout()
	history, err := checkpoint.History(cmd.Context(), store, runID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return NewExitError(ExitFailure, "no checkpoints for run "+runID)
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%4s  %-10s %-10s %s", "SEQ", "NODE", "STATUS", "TIME")))
	for _, cp := range history {
		status := okStyle.Render(fmt.Sprintf("%-10s", cp.Status))
		if cp.Status == checkpoint.StatusFailed {
			status = failStyle.Render(fmt.Sprintf("%-10s", cp.Status))
		}
		fmt.Fprintf(out, "%4d  %-10s %s %s\n", cp.Sequence, cp.Node, status, cp.Timestamp.Format(time.DateTime))
	}
	return nil
}
