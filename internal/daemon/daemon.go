package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/queue"
	"quill/internal/scheduler"
	"quill/internal/workflow"
)

// Daemon runs the scheduler loop and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *queue.Store
	orchestrator *workflow.Orchestrator
	scheduler    *scheduler.Scheduler

	lockPath string
	lock     *Lock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, orch *workflow.Orchestrator, sched *scheduler.Scheduler) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, orchestrator and scheduler")
	}
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orch,
		scheduler:    sched,
		lockPath:     cfg.LockPath(),
	}, nil
}

// Start acquires the run lock and launches the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.lockPath)
	if err != nil {
		return err
	}
	d.lock = lock

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.scheduler.Run(runCtx); err != nil {
			d.runErr = err
			logging.ErrorWithContext(d.logger, "scheduler exited", "scheduler_error", logging.Error(err))
		}
	}()

	d.logger.Info("quill daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Wait blocks until the scheduler loop exits and returns its error.
func (d *Daemon) Wait() error {
	d.wg.Wait()
	return d.runErr
}

// Stop stops the scheduler loop and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Release(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report the lock as held"),
		)
	}
	d.lock = nil
	d.running.Store(false)
	d.logger.Info("quill daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.orchestrator.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Workflow:     summary,
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}, nil
}

// TestNotification sends a test notification using the current configuration.
func TestNotification(ctx context.Context, cfg *config.Config) (bool, string, error) {
	if cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := notifications.NewService(cfg).Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", fmt.Errorf("send test notification: %w", err)
	}
	return true, "test notification sent", nil
}
