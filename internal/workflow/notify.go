package workflow

import (
	"context"

	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/queue"
	"quill/internal/stage"
)

// notify sends the outcome notification. Delivery failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, run *stage.Run, status queue.Status, failed stage.Name, message string) {
	if o.notifier == nil {
		return
	}
	title := run.Item.Title
	if run.HasDocument() && run.Doc.Title() != "" {
		title = run.Doc.Title()
	}
	if title == "" {
		title = run.Item.Keyword
	}
	payload := notifications.Payload{"title": title, "slug": run.Slug}

	var event notifications.Event
	switch status {
	case queue.StatusPublished:
		event = notifications.EventPublished
		payload["url"] = run.URL
		if run.HasScore {
			payload["score"] = run.Score
		}
	case queue.StatusFailed:
		event = notifications.EventFailed
		payload["stage"] = string(failed)
		payload["error"] = message
	case queue.StatusStaged:
		event = notifications.EventStaged
	default:
		return
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(run.Logger, "notification failed", "notification_error",
			logging.String("notification_event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "outcome recorded without a notification"),
		)
	}
}
