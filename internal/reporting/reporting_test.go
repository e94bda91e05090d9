package reporting_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/reporting"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func seed(t *testing.T, store *queue.Store, now time.Time) {
	t.Helper()
	ctx := context.Background()
	for i, kw := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		testsupport.NewItem(t, store, kw, i+1)
	}
	events := []queue.Event{
		{Type: queue.EventPublished, Keyword: "old", Slug: "old", OccurredAt: now.AddDate(0, 0, -9)},
		{Type: queue.EventPublished, Keyword: "gold price", Slug: "gold-price", OccurredAt: now.AddDate(0, 0, -2), DurationSeconds: 95},
		{Type: queue.EventFailed, Keyword: "silver", OccurredAt: now.AddDate(0, 0, -1), Error: "generate: model refused <script>"},
	}
	for _, e := range events {
		if _, err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	for slug, clicks := range map[string]int{"gold-price": 40, "oil": 0} {
		if _, err := store.UpsertTracked(ctx, slug, queue.TrackerPatch{
			Title:       queue.StringPtr(slug),
			Status:      queue.StringPtr("published"),
			Clicks:      queue.IntPtr(clicks),
			Impressions: queue.IntPtr(400),
		}); err != nil {
			t.Fatalf("UpsertTracked: %v", err)
		}
	}
}

func TestBuildSummarisesLastSevenDays(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now().UTC()
	seed(t, store, now)

	summary, err := reporting.Build(context.Background(), store, "Desk", 2, time.UTC, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(summary.Published) != 1 || summary.Published[0].Slug != "gold-price" {
		t.Fatalf("expected one publish inside the window, got %#v", summary.Published)
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(summary.Failed))
	}
	if summary.Queued != 5 || summary.DaysRemaining != 3 {
		t.Fatalf("expected 5 queued lasting 3 days, got %d / %d", summary.Queued, summary.DaysRemaining)
	}
	if summary.TotalPublished != 2 || summary.TotalClicks != 40 || summary.TotalImpressions != 800 {
		t.Fatalf("unexpected tracker totals %#v", summary)
	}
	if len(summary.Top) != 1 || summary.Top[0].Slug != "gold-price" {
		t.Fatalf("unexpected top performers %#v", summary.Top)
	}
	if !strings.HasPrefix(summary.Subject(), "Blog Report: 1 published, 5 queued") {
		t.Fatalf("unexpected subject %q", summary.Subject())
	}
}

func TestDaysRemaining(t *testing.T) {
	tests := []struct {
		queued, quota, want int
	}{
		{0, 3, 0},
		{1, 3, 1},
		{3, 3, 1},
		{7, 3, 3},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := reporting.DaysRemaining(tt.queued, tt.quota); got != tt.want {
			t.Fatalf("DaysRemaining(%d, %d) = %d, want %d", tt.queued, tt.quota, got, tt.want)
		}
	}
}

func TestRenderEscapesAndIncludesSections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now().UTC()
	seed(t, store, now)
	summary, err := reporting.Build(context.Background(), store, "Desk", 2, time.UTC, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	html, err := reporting.HTML(summary)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	for _, want := range []string{"Desk Blog", "gold-price", "Top Performers", "10.0%", "3 days", "1m35s"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in html", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("error text must be escaped")
	}

	text := reporting.Text(summary)
	if !strings.Contains(text, "Published this week: 1") || !strings.Contains(text, "silver: generate: model refused") {
		t.Fatalf("unexpected text report:\n%s", text)
	}
}

func TestResendSenderPostsEmail(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	sender := reporting.NewResendSender(config.Reporting{BaseURL: server.URL, APIKey: "key", From: "quill <q@example.com>"}, server.Client())
	summary := reporting.Summary{From: time.Now().AddDate(0, 0, -7), To: time.Now(), Queued: 4}
	if err := sender.Send(context.Background(), "ops@example.com", summary); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["from"] != "quill <q@example.com>" || !strings.Contains(got["subject"].(string), "4 queued") {
		t.Fatalf("unexpected request %#v", got)
	}
	if to, ok := got["to"].([]any); !ok || len(to) != 1 || to[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients %#v", got["to"])
	}
}

func TestResendSenderClassifiesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := reporting.NewResendSender(config.Reporting{BaseURL: server.URL, APIKey: "key"}, server.Client())
	err := sender.Send(context.Background(), "ops@example.com", reporting.Summary{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	unconfigured := reporting.NewResendSender(config.Reporting{}, nil)
	if err := unconfigured.Send(context.Background(), "ops@example.com", reporting.Summary{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without key, got %v", err)
	}
}

type captureSender struct {
	recipient string
	summary   reporting.Summary
}

func (c *captureSender) Send(_ context.Context, recipient string, summary reporting.Summary) error {
	c.recipient = recipient
	c.summary = summary
	return nil
}

func TestReporterSendUsesConfiguredRecipient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Reporting.Recipient = "team@example.com"
	store := testsupport.MustOpenStore(t, cfg)
	sender := &captureSender{}

	reporter := reporting.NewReporter(cfg, store, sender, logging.NewNop())
	if _, err := reporter.Send(context.Background(), ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sender.recipient != "team@example.com" {
		t.Fatalf("unexpected recipient %q", sender.recipient)
	}

	cfg.Reporting.Recipient = ""
	if _, err := reporter.Send(context.Background(), ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without recipient, got %v", err)
	}
}
