package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/reporting"
	"quill/internal/services"
	"quill/internal/workflow"
)

// Runner is the orchestrator surface a tick needs.
type Runner interface {
	RunNext(ctx context.Context, opts workflow.RunOptions) (*workflow.Outcome, error)
}

// Reporter sends the weekly report. An empty recipient means the configured
// one.
type Reporter interface {
	Send(ctx context.Context, recipient string) (reporting.Summary, error)
}

// Reason explains why a tick did or did not run the pipeline.
type Reason string

const (
	ReasonRan           Reason = "ran"
	ReasonOutsideWindow Reason = "outside_window"
	ReasonWindowUsed    Reason = "window_used"
	ReasonQuotaReached  Reason = "quota_reached"
	ReasonNoEligible    Reason = "no_eligible_item"
	ReasonError         Reason = "error"
)

// TickResult describes one tick.
type TickResult struct {
	At             time.Time
	Window         time.Time
	InWindow       bool
	PublishedToday int
	Quota          int
	Reason         Reason
	Outcome        *workflow.Outcome
	ReportSent     bool
	Err            error
}

// Ran reports whether the tick executed a run.
func (r TickResult) Ran() bool { return r.Reason == ReasonRan }

// Scheduler evaluates ticks against the publish windows and quota.
type Scheduler struct {
	cfg      *config.Config
	store    *queue.Store
	runner   Runner
	reporter Reporter
	logger   *slog.Logger
	now      func() time.Time

	loc     *time.Location
	windows []cron.Schedule
	report  cron.Schedule
	width   time.Duration

	tickMu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReporter enables the weekly report trigger.
func WithReporter(reporter Reporter) Option {
	return func(s *Scheduler) { s.reporter = reporter }
}

// New builds a scheduler from cfg.Schedule.
func New(cfg *config.Config, store *queue.Store, runner Runner, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	windows, err := ParseWindows(cfg.Schedule.PublishWindows)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "publish windows", err.Error(), nil)
	}
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		now:     time.Now,
		loc:     cfg.Location(),
		windows: windows,
		width:   cfg.WindowWidth(),
	}
	if spec := cfg.Schedule.ReportSchedule; spec != "" {
		report, err := config.CronParser.Parse(spec)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "scheduler", "report schedule", err.Error(), nil)
		}
		s.report = report
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick evaluates the current time once. Errors are logged and returned in
// the result; they never propagate as panics.
func (s *Scheduler) Tick(ctx context.Context) (result TickResult) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now().In(s.loc)
	result = TickResult{At: now, Quota: s.cfg.Schedule.DailyQuota}
	defer func() {
		if r := recover(); r != nil {
			result.Reason = ReasonError
			result.Err = services.Wrap(services.ErrInvariant, "scheduler", "tick", fmt.Sprintf("panic: %v", r), nil)
			logging.ErrorWithContext(s.logger, "tick panicked", "tick_panic", logging.Error(result.Err))
		}
	}()

	result.ReportSent = s.maybeReport(ctx, now)
	s.publishTick(ctx, now, &result)
	return result
}

func (s *Scheduler) publishTick(ctx context.Context, now time.Time, result *TickResult) {
	start, ok := WindowStart(s.windows, now, s.width)
	if !ok {
		result.Reason = ReasonOutsideWindow
		return
	}
	result.InWindow = true
	result.Window = start
	key := windowKey(start)

	handled, _, err := s.store.StateValue(ctx, queue.StateLastPublishWindow)
	if err != nil {
		s.tickError(result, "read window state", err)
		return
	}
	if handled == key {
		result.Reason = ReasonWindowUsed
		return
	}

	published, err := s.store.PublishedOn(ctx, s.store.Day(now))
	if err != nil {
		s.tickError(result, "read daily count", err)
		return
	}
	result.PublishedToday = published
	if published >= s.cfg.Schedule.DailyQuota {
		result.Reason = ReasonQuotaReached
		s.logger.Info("daily quota reached",
			logging.String(logging.FieldEventType, "quota_reached"),
			logging.Int("published_today", published),
			logging.Int("quota", s.cfg.Schedule.DailyQuota),
		)
		return
	}

	next, err := s.store.NextEligible(ctx)
	if err != nil {
		s.tickError(result, "find eligible item", err)
		return
	}
	if next == nil {
		result.Reason = ReasonNoEligible
		s.logger.Debug("publish window open but nothing eligible", logging.Time("window", start))
		return
	}

	// Record the window before running; a restart mid-run must not reuse it.
	if err := s.store.SetStateValue(ctx, queue.StateLastPublishWindow, key); err != nil {
		s.tickError(result, "record window", err)
		return
	}
	s.logger.Info("publish window run",
		logging.String(logging.FieldEventType, "window_run"),
		logging.Time("window", start),
		logging.Int("published_today", published),
		logging.Bool("staged", s.cfg.Schedule.Staging),
	)
	outcome, err := s.runner.RunNext(ctx, workflow.RunOptions{Staged: s.cfg.Schedule.Staging})
	result.Outcome = outcome
	if outcome == nil && err == nil {
		result.Reason = ReasonNoEligible
		return
	}
	result.Reason = ReasonRan
	if err != nil {
		result.Err = err
		logging.WarnWithContext(s.logger, "scheduled run failed", "window_run_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "quill queue show <id> for details; quill queue retry to requeue"),
			logging.String(logging.FieldImpact, "item marked failed; next window continues with the queue"),
		)
	}
}

func (s *Scheduler) maybeReport(ctx context.Context, now time.Time) bool {
	if s.reporter == nil || s.report == nil {
		return false
	}
	start, ok := WindowStart([]cron.Schedule{s.report}, now, s.width)
	if !ok {
		return false
	}
	key := windowKey(start)
	last, _, err := s.store.StateValue(ctx, queue.StateLastReport)
	if err != nil {
		logging.WarnWithContext(s.logger, "read report state failed", "report_state_error", logging.Error(err))
		return false
	}
	if last == key {
		return false
	}
	if err := s.store.SetStateValue(ctx, queue.StateLastReport, key); err != nil {
		logging.WarnWithContext(s.logger, "record report window failed", "report_state_error", logging.Error(err))
		return false
	}
	if _, err := s.reporter.Send(ctx, ""); err != nil {
		logging.WarnWithContext(s.logger, "weekly report failed", "report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no report this week; run quill report --send to retry"),
		)
		return false
	}
	return true
}

func (s *Scheduler) tickError(result *TickResult, op string, err error) {
	result.Reason = ReasonError
	result.Err = fmt.Errorf("%s: %w", op, err)
	logging.ErrorWithContext(s.logger, "tick failed", "tick_error",
		logging.String("operation", op),
		logging.Error(err),
	)
}
