package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"quill/internal/logging"
)

// Run ticks immediately and then every schedule.tick_interval_seconds until
// ctx is cancelled. Overlapping ticks are skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.TickInterval()
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", interval)
	}
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.logTick(s.Tick(ctx)) }); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}

	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_start"),
		logging.Duration("tick_interval", interval),
		logging.Int("windows", len(s.windows)),
		logging.Int("daily_quota", s.cfg.Schedule.DailyQuota),
		logging.String("timezone", s.loc.String()),
	)
	s.logTick(s.Tick(ctx))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stop"))
	return nil
}

func (s *Scheduler) logTick(result TickResult) {
	s.logger.Debug("tick",
		logging.String("reason", string(result.Reason)),
		logging.Bool("in_window", result.InWindow),
		logging.Int("published_today", result.PublishedToday),
		logging.Bool("report_sent", result.ReportSent),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, logging.Error(err))...)
}
