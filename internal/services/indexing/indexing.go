// Package indexing submits freshly published URLs to a search-engine indexing
// endpoint (Google Indexing API URL notifications by default).
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

// Service submits a URL for indexing.
type Service interface {
	Submit(ctx context.Context, pageURL string) error
}

// HTTPDoer describes the HTTP client used by the indexing service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type noopService struct{}

func (noopService) Submit(context.Context, string) error { return nil }

type httpService struct {
	endpoint string
	token    string
	client   HTTPDoer
}

// NewConfiguredService returns an HTTP-backed service when indexing is enabled
// and credentials are present, otherwise a no-op.
func NewConfiguredService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Indexing.Enabled {
		return noopService{}
	}
	endpoint := strings.TrimSpace(cfg.Indexing.Endpoint)
	token := strings.TrimSpace(cfg.Indexing.AccessToken)
	if endpoint == "" || token == "" {
		return noopService{}
	}
	timeout := 25 * time.Second
	if cfg.Indexing.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Indexing.TimeoutSeconds) * time.Second
	}
	return NewHTTPService(endpoint, token, &http.Client{Timeout: timeout})
}

// NewHTTPService constructs an HTTP-backed indexing service.
func NewHTTPService(endpoint, token string, client HTTPDoer) Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpService{
		endpoint: strings.TrimSpace(endpoint),
		token:    strings.TrimSpace(token),
		client:   client,
	}
}

// IsNoop reports whether svc discards submissions.
func IsNoop(svc Service) bool {
	_, ok := svc.(noopService)
	return ok
}

func (s *httpService) Submit(ctx context.Context, pageURL string) error {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return services.Wrap(services.ErrValidation, "announce", "submit url", "url is empty", nil)
	}
	body, err := json.Marshal(map[string]string{"url": pageURL, "type": "URL_UPDATED"})
	if err != nil {
		return fmt.Errorf("encode indexing request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build indexing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "announce", "submit url", "indexing request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return services.Wrap(services.ErrExternalTool, "announce", "submit url",
			fmt.Sprintf("indexing returned %d: %s", resp.StatusCode, services.Truncate(string(payload), 200)), nil)
	}
	return nil
}
