package indexing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quill/internal/config"
	"quill/internal/services"
	"quill/internal/services/indexing"
)

func TestSubmitPostsURLUpdated(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("unexpected auth %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Indexing.Endpoint = server.URL
	cfg.Indexing.AccessToken = "tok"
	svc := indexing.NewConfiguredService(&cfg)
	if indexing.IsNoop(svc) {
		t.Fatal("expected http service")
	}
	if err := svc.Submit(context.Background(), "https://example.com/blog/post"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if body["url"] != "https://example.com/blog/post" || body["type"] != "URL_UPDATED" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestSubmitFailureIsExternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := indexing.NewHTTPService(server.URL, "tok", nil)
	if err := svc.Submit(context.Background(), "https://example.com/x"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestDisabledIndexingIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Indexing.Enabled = false
	if !indexing.IsNoop(indexing.NewConfiguredService(&cfg)) {
		t.Fatal("disabled indexing should be a no-op")
	}
	cfg.Indexing.Enabled = true
	cfg.Indexing.AccessToken = ""
	if !indexing.IsNoop(indexing.NewConfiguredService(&cfg)) {
		t.Fatal("missing token should be a no-op")
	}
}
