package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/services"
)

const (
	defaultRetryAfter = 60 * time.Second
	defaultTimeout    = 30 * time.Second
)

// HTTPDoer describes the HTTP client used by the CMS client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Record is a collection item as sent to the CMS.
type Record struct {
	FieldData  map[string]any `json:"fieldData"`
	IsDraft    bool           `json:"isDraft"`
	IsArchived bool           `json:"isArchived"`
}

// Client is a rate-limited CMS collection client.
type Client struct {
	base       string
	token      string
	collection string
	maxRetries int
	http       HTTPDoer
	limiter    *Limiter
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLimiter injects a shared limiter.
func WithLimiter(limiter *Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithSleeper overrides how 429 back-off waits; used by tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a CMS client from configuration.
func NewClient(cfg config.CMS, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		base:       strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		token:      strings.TrimSpace(cfg.APIToken),
		collection: strings.TrimSpace(cfg.CollectionID),
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: timeout},
		sleep:      sleepContext,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(cfg.RequestsPerMinute, cfg.Burst)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c
}

// Configured reports whether the client has credentials and a collection.
func (c *Client) Configured() bool {
	return c != nil && c.base != "" && c.token != "" && c.collection != ""
}

// CreateRecord creates a collection item and returns its id.
func (c *Client) CreateRecord(ctx context.Context, record Record) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "create record", http.MethodPost, c.itemsPath(), record, &created); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", services.Wrap(services.ErrExternalTool, "publish", "create record", "response carried no item id", nil)
	}
	return created.ID, nil
}

// UpdateRecord replaces the field data of an existing item.
func (c *Client) UpdateRecord(ctx context.Context, id string, record Record) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.Wrap(services.ErrValidation, "publish", "update record", "item id is empty", nil)
	}
	return c.do(ctx, "update record", http.MethodPatch, c.itemsPath()+"/"+url.PathEscape(id), record, nil)
}

// PublishRecords pushes the given items live.
func (c *Client) PublishRecords(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string][]string{"itemIds": ids}
	return c.do(ctx, "publish records", http.MethodPost, c.itemsPath()+"/publish", body, nil)
}

// HealthCheck fetches the collection definition.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "publish", "cms health", "cms api_token or collection_id missing", nil)
	}
	return c.do(ctx, "cms health", http.MethodGet, "/collections/"+url.PathEscape(c.collection), nil, nil)
}

func (c *Client) itemsPath() string {
	return "/collections/" + url.PathEscape(c.collection) + "/items"
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "publish", op, "cms api_token or collection_id missing", nil)
	}
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return services.Wrap(services.ErrTimeout, "publish", op, "rate limiter wait", err)
		}
		status, header, payload, err := c.send(ctx, method, path, encoded)
		if err != nil {
			return services.Wrap(services.ErrTransient, "publish", op, "request failed", err)
		}
		c.limiter.Observe(header)

		if status == http.StatusTooManyRequests {
			if attempt >= c.maxRetries {
				return services.Wrap(services.ErrTransient, "publish", op,
					fmt.Sprintf("rate limited after %d attempts", attempt+1), nil)
			}
			delay := retryAfter(header.Get("Retry-After"))
			c.logger.Warn("cms rate limited; retrying",
				logging.String("operation", op),
				logging.Duration("retry_after", delay),
				logging.Int("attempt", attempt+1),
				logging.String(logging.FieldEventType, "cms_rate_limited"),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return services.Wrap(services.ErrTimeout, "publish", op, "waiting for rate limit", err)
			}
			continue
		}
		if status >= http.StatusInternalServerError {
			return services.Wrap(services.ErrTransient, "publish", op,
				fmt.Sprintf("cms returned %d: %s", status, services.Truncate(string(payload), 200)), nil)
		}
		if status >= http.StatusMultipleChoices {
			return services.Wrap(services.ErrExternalTool, "publish", op,
				fmt.Sprintf("cms returned %d: %s", status, services.Truncate(string(payload), 200)), nil)
		}
		if out != nil && len(bytes.TrimSpace(payload)) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				return services.Wrap(services.ErrExternalTool, "publish", op, "decode response", err)
			}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, payload, nil
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
		return 0
	}
	return defaultRetryAfter
}
