package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
)

const userAgent = "quill/1.0"

const defaultServer = "https://ntfy.sh/"

// Event identifies a notification type.
type Event string

const (
	EventPublished  Event = "published"
	EventStaged     Event = "staged"
	EventFailed     Event = "failed"
	EventReportSent Event = "report_sent"
	EventTest       Event = "test"
)

// Payload carries event fields. Keys used by the ntfy formatter: title, slug,
// url, score, stage, error, count.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		topic = defaultServer + strings.TrimLeft(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		published: cfg.Notifications.Published,
		failures:  cfg.Notifications.Failures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	published bool
	failures  bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventPublished, EventStaged:
		if !n.published {
			return nil
		}
	case EventFailed:
		if !n.failures {
			return nil
		}
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	title := payload.text("title")
	if title == "" {
		title = payload.text("slug")
	}
	switch event {
	case EventPublished:
		body := fmt.Sprintf("Published: %s", title)
		if score := payload.text("score"); score != "" {
			body += fmt.Sprintf(" (score %s)", score)
		}
		return message{
			title: "quill - Published",
			body:  body,
			tags:  []string{"quill", "published"},
			click: payload.text("url"),
		}, true
	case EventStaged:
		return message{
			title: "quill - Staged",
			body:  fmt.Sprintf("Staged for review: %s", title),
			tags:  []string{"quill", "staged"},
		}, true
	case EventFailed:
		var b strings.Builder
		b.WriteString("Run failed")
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" at ")
			b.WriteString(stage)
		}
		if title != "" {
			b.WriteString(" for ")
			b.WriteString(title)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "quill - Error",
			body:     b.String(),
			tags:     []string{"quill", "error", "alert"},
			priority: "high",
		}, true
	case EventReportSent:
		return message{
			title: "quill - Weekly Report",
			body:  fmt.Sprintf("Weekly report sent to %s", payload.text("recipient")),
			tags:  []string{"quill", "report"},
		}, true
	case EventTest:
		return message{
			title:    "quill - Test",
			body:     "Notification system test",
			tags:     []string{"quill", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
