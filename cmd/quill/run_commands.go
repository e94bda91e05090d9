package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/daemon"
	"quill/internal/stage"
	"quill/internal/workflow"
)

// withRunLock holds the run lock for the duration of fn.
func withRunLock(a *app, fn func() error) error {
	lock, err := daemon.AcquireLock(a.cfg.LockPath())
	if err != nil {
		if errors.Is(err, daemon.ErrLocked) {
			return fmt.Errorf("another quill process is running (lock %s)", a.cfg.LockPath())
		}
		return err
	}
	defer lock.Release()
	return fn()
}

func runFailure(outcome *workflow.Outcome) error {
	if outcome == nil || !outcome.Failed() {
		return nil
	}
	if outcome.Err != nil {
		return fmt.Errorf("run failed: %w", outcome.Err)
	}
	return errors.New("run failed")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var staging bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the next eligible queue item through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				return withRunLock(a, func() error {
					opts := workflow.RunOptions{Staged: staging || a.cfg.Schedule.Staging, DryRun: dryRun}
					outcome, err := a.orchestrator.RunNext(runCtx, opts)
					out := cmd.OutOrStdout()
					if outcome != nil {
						printOutcome(out, outcome)
					}
					if err != nil {
						return err
					}
					if outcome == nil {
						fmt.Fprintln(out, "No eligible items in the queue")
						return nil
					}
					return runFailure(outcome)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&staging, "staging", false, "Stop before publish and leave the item staged")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write the destination payload locally instead of publishing")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var from string
	var staging bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "resume <item-id>",
		Short: "Resume a staged or failed item from a given stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := stage.Parse(from)
			if !ok {
				return fmt.Errorf("unknown stage %q (expected one of %s)", from, stageNames())
			}
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				return withRunLock(a, func() error {
					opts := workflow.RunOptions{Staged: staging, DryRun: dryRun}
					outcome, err := a.orchestrator.Resume(runCtx, strings.TrimSpace(args[0]), name, opts)
					if outcome != nil {
						printOutcome(cmd.OutOrStdout(), outcome)
					}
					if err != nil {
						return err
					}
					return runFailure(outcome)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", string(stage.Publish), "Stage to resume from")
	cmd.Flags().BoolVar(&staging, "staging", false, "Stop before publish and leave the item staged")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write the destination payload locally instead of publishing")
	return cmd
}

func newPublishApprovedCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "publish-approved",
		Short: "Publish every staged item whose document is approved",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				return withRunLock(a, func() error {
					outcomes, err := a.orchestrator.PublishApproved(runCtx, workflow.BulkOptions{Limit: limit, DryRun: dryRun})
					out := cmd.OutOrStdout()
					if len(outcomes) == 0 && err == nil {
						fmt.Fprintln(out, "No approved documents waiting to publish")
						return nil
					}
					failed := 0
					for i, outcome := range outcomes {
						if i > 0 {
							fmt.Fprintln(out)
						}
						printOutcome(out, outcome)
						if outcome.Failed() {
							failed++
						}
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\nProcessed %d item(s), %d failed\n", len(outcomes), failed)
					if failed > 0 {
						return fmt.Errorf("%d of %d publish runs failed", failed, len(outcomes))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items to publish (0 = all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write destination payloads locally instead of publishing")
	return cmd
}

func stageNames() string {
	names := make([]string, 0, len(stage.Sequence()))
	for _, name := range stage.Sequence() {
		names = append(names, string(name))
	}
	return strings.Join(names, ", ")
}
