package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quill/internal/daemon"
	"quill/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var staging bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return ctx.withApp(signalCtx, func(runCtx context.Context, a *app) error {
				if staging {
					a.cfg.Schedule.Staging = true
				}
				sched, err := a.scheduler()
				if err != nil {
					return err
				}
				d, err := daemon.New(a.cfg, a.store, a.logger, a.orchestrator, sched)
				if err != nil {
					return fmt.Errorf("create daemon: %w", err)
				}
				if err := d.Start(runCtx); err != nil {
					if errors.Is(err, daemon.ErrLocked) {
						return fmt.Errorf("another quill process is running (lock %s)", a.cfg.LockPath())
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "quill serving (windows %v, quota %d/day, staging %s)\n",
					a.cfg.Schedule.PublishWindows, a.cfg.Schedule.DailyQuota, yesNo(a.cfg.Schedule.Staging))

				<-runCtx.Done()
				a.logger.Info("quill shutting down", logging.String(logging.FieldEventType, "shutdown"))
				d.Stop()
				if err := d.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&staging, "staging", false, "Stop every run before publish")
	return cmd
}
