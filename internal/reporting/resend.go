package reporting

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

// Sender delivers a rendered report to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient string, summary Summary) error
}

// HTTPDoer describes the HTTP client used by ResendSender.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResendSender posts the report to the Resend email API.
type ResendSender struct {
	baseURL string
	apiKey  string
	from    string
	client  HTTPDoer
}

// NewResendSender builds a sender from config. client may be nil.
func NewResendSender(cfg config.Reporting, client HTTPDoer) *ResendSender {
	if client == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ResendSender{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		from:    strings.TrimSpace(cfg.From),
		client:  client,
	}
}

// Configured reports whether an API key is present.
func (r *ResendSender) Configured() bool {
	return r != nil && r.apiKey != ""
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Send renders summary and posts it.
func (r *ResendSender) Send(ctx context.Context, recipient string, summary Summary) error {
	if !r.Configured() {
		return services.Wrap(services.ErrConfiguration, "report", "send", "reporting.api_key is not set", nil)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return services.Wrap(services.ErrConfiguration, "report", "send", "no report recipient configured", nil)
	}
	html, err := HTML(summary)
	if err != nil {
		return err
	}
	body, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{recipient},
		Subject: summary.Subject(),
		HTML:    html,
		Text:    Text(summary),
	})
	if err != nil {
		return fmt.Errorf("encode report email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "report", "send", "resend request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		marker := services.ErrExternalTool
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			marker = services.ErrConfiguration
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "report", "send",
			fmt.Sprintf("resend returned %d: %s", resp.StatusCode, services.Truncate(string(snippet), 200)), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
