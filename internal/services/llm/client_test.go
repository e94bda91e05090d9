package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quill/internal/services"
)

func replyWith(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": content},
			},
		},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestHealthCheckAcceptsFencedJSON(t *testing.T) {
	for _, content := range []string{`{"ok":true}`, "```json\n{\"ok\":true}\n```", `Sure: {"ok": true}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test" {
				t.Errorf("unexpected auth header %q", got)
			}
			_ = json.NewEncoder(w).Encode(replyWith(content))
		}))
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
		if err := client.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck(%q): %v", content, err)
		}
		server.Close()
	}
}

func TestHealthCheckUnauthorizedIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, WithSleeper(noSleep))
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestCompleteReportsUsage(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reply := replyWith("# Title\n\nBody")
		reply["model"] = "demo-model"
		reply["usage"] = map[string]any{"prompt_tokens": 120, "completion_tokens": 800, "cost": 0.0042}
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	completion, err := client.Complete(context.Background(), "be helpful", "write a post", 4000)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if received.MaxTokens != 4000 || received.ResponseFormat != nil || received.Usage == nil || !received.Usage.Include {
		t.Fatalf("unexpected request %#v", received)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %#v", received.Messages)
	}
	if !strings.HasPrefix(completion.Text, "# Title") || completion.Model != "demo-model" {
		t.Fatalf("unexpected completion %#v", completion)
	}
	if completion.Usage.InputTokens != 120 || completion.Usage.OutputTokens != 800 || completion.Usage.Cost != 0.0042 {
		t.Fatalf("unexpected usage %#v", completion.Usage)
	}
}

func TestCompleteWithoutSystemPromptSendsOneMessage(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(replyWith("body"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	completion, err := client.Complete(context.Background(), "  ", "prompt", 10)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(received.Messages) != 1 || received.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages %#v", received.Messages)
	}
	if completion.Model != "demo" {
		t.Fatalf("expected configured model as fallback, got %q", completion.Model)
	}
}

func TestCompleteEmptyContentIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"finish_reason": "length", "message": map[string]any{"content": ""}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, WithRetryMaxAttempts(1))
	_, err := client.Complete(context.Background(), "", "write a post", 10)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), `finish_reason="length"`) {
		t.Fatalf("expected finish reason in error, got %v", err)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if _, err := client.Complete(context.Background(), "", "prompt", 10); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCompleteHonoursRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(replyWith("draft body"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)
	completion, err := client.Complete(context.Background(), "", "prompt", 100)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Text != "draft body" || calls != 2 {
		t.Fatalf("unexpected result %q after %d calls", completion.Text, calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected one 1s wait, got %v", slept)
	}
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithRetryMaxAttempts(3),
		WithRetryBackoff(time.Second, 3*time.Second),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)
	_, err := client.Complete(context.Background(), "", "prompt", 10)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected back-off %v", slept)
	}
}

func TestBackoffCaps(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(2*time.Second, 5*time.Second))
	tests := map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 5 * time.Second, 8: 5 * time.Second}
	for attempt, want := range tests {
		if got := client.backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Content string `json:"content"`
	}
	if err := DecodeJSON("Here you go:\n```json\n{\"content\":\"hi\"}\n```", &out); err != nil || out.Content != "hi" {
		t.Fatalf("fenced decode: %q %v", out.Content, err)
	}
	if err := DecodeJSON("no json here", &out); err == nil {
		t.Fatal("expected error for prose")
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
