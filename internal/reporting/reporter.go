package reporting

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/services"
)

// Reporter builds and delivers weekly reports.
type Reporter struct {
	cfg      *config.Config
	source   Source
	sender   Sender
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewReporter wires a reporter. A nil sender means Resend from config.
func NewReporter(cfg *config.Config, source Source, sender Sender, logger *slog.Logger) *Reporter {
	if sender == nil {
		sender = NewResendSender(cfg.Reporting, nil)
	}
	return &Reporter{
		cfg:      cfg,
		source:   source,
		sender:   sender,
		notifier: notifications.NewService(cfg),
		logger:   logging.NewComponentLogger(logger, "report"),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (r *Reporter) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetNotifier replaces the notifier derived from config.
func (r *Reporter) SetNotifier(n notifications.Service) {
	if n != nil {
		r.notifier = n
	}
}

// Preview builds the summary without sending anything.
func (r *Reporter) Preview(ctx context.Context) (Summary, error) {
	return Build(ctx, r.source, r.cfg.Site.Brand, r.cfg.Schedule.DailyQuota, r.cfg.Location(), r.now())
}

// Send builds the summary and delivers it to recipient, or to
// reporting.recipient when recipient is empty.
func (r *Reporter) Send(ctx context.Context, recipient string) (Summary, error) {
	summary, err := r.Preview(ctx)
	if err != nil {
		return summary, err
	}
	if strings.TrimSpace(recipient) == "" {
		recipient = r.cfg.Reporting.Recipient
	}
	if strings.TrimSpace(recipient) == "" {
		return summary, services.Wrap(services.ErrConfiguration, "report", "send", "no report recipient configured", nil)
	}
	if err := r.sender.Send(ctx, recipient, summary); err != nil {
		return summary, err
	}
	r.logger.Info("weekly report sent",
		logging.String(logging.FieldEventType, "report_sent"),
		logging.String("recipient", recipient),
		logging.Int("published", len(summary.Published)),
		logging.Int("failed", len(summary.Failed)),
		logging.Int("queued", summary.Queued),
	)
	if err := r.notifier.Publish(ctx, notifications.EventReportSent, notifications.Payload{"recipient": recipient}); err != nil {
		logging.WarnWithContext(r.logger, "report notification failed", "notification_error", logging.Error(err))
	}
	return summary, nil
}
