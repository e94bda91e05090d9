package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quill/internal/logging"
	"quill/internal/services"
)

const (
	defaultEndpoint  = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout   = 120 * time.Second
	defaultAttempts  = 4
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 30 * time.Second
	snippetLimit     = 160
)

// Config holds the endpoint settings for an OpenRouter-compatible API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a chat completion endpoint with bounded retries.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	referer  string
	title    string

	http      HTTPDoer
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
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

// WithRetryMaxAttempts sets the total number of attempts per request.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.attempts = attempts
	}
}

// WithRetryBackoff sets the exponential back-off bounds.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retries wait; used by tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client. An empty BaseURL targets OpenRouter.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		endpoint:  strings.TrimSpace(cfg.BaseURL),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     strings.TrimSpace(cfg.Model),
		referer:   strings.TrimSpace(cfg.Referer),
		title:     strings.TrimSpace(cfg.Title),
		http:      &http.Client{Timeout: timeout},
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		sleep:     sleepContext,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Usage is the token accounting for one completion. Cost is set when the
// provider reports it.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Completion is the model's text with its usage.
type Completion struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// Complete requests a free-form completion bounded by maxTokens. An empty
// system prompt sends only the user message.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (Completion, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Completion{}, services.Wrap(services.ErrValidation, "generate", "complete", "prompt is empty", nil)
	}
	req := chatRequest{
		Model:       c.model,
		Messages:    messages(system, prompt),
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		Usage:       &usageRequest{Include: true},
	}
	return c.complete(ctx, "complete", req)
}

// HealthCheck sends a tiny JSON prompt to confirm the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	req := chatRequest{
		Model:          c.model,
		Messages:       messages("Respond with JSON only.", `Respond with {"ok":true}`),
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	completion, err := c.complete(ctx, "health", req)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(completion.Text, &parsed); err != nil {
		return services.Wrap(services.ErrExternalTool, "generate", "health", "unparseable reply", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrExternalTool, "generate", "health", "unexpected reply "+snippet(completion.Text), nil)
	}
	return nil
}

func messages(system, prompt string) []chatMessage {
	out := make([]chatMessage, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	return append(out, chatMessage{Role: "user", Content: prompt})
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Usage          *usageRequest     `json:"usage,omitempty"`
}

type usageRequest struct {
	Include bool `json:"include"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError carries a non-2xx reply and any Retry-After the server sent.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, snippet(e.body))
}

func (c *Client) complete(ctx context.Context, op string, req chatRequest) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, services.Wrap(services.ErrConfiguration, "generate", op, "llm api key missing", nil)
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return Completion{}, fmt.Errorf("%s: encode request: %w", op, err)
	}
	for attempt := 1; ; attempt++ {
		completion, err := c.send(ctx, op, encoded)
		if err == nil {
			if completion.Model == "" {
				completion.Model = req.Model
			}
			return completion, nil
		}
		if attempt >= c.attempts || ctx.Err() != nil || !services.Retriable(err) {
			return Completion{}, err
		}
		delay := c.backoff(attempt)
		var status *statusError
		if errors.As(err, &status) && status.retryAfter > 0 {
			delay = min(status.retryAfter, c.maxDelay)
		}
		c.logger.Warn("llm request failed; retrying",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "llm_retry"),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return Completion{}, services.Wrap(services.ErrTimeout, "generate", op, "waiting to retry", err)
		}
	}
}

func (c *Client) send(ctx context.Context, op string, body []byte) (Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, services.Wrap(services.ErrConfiguration, "generate", op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, services.Wrap(services.ErrTransient, "generate", op, "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, services.Wrap(services.ErrTransient, "generate", op, "read response", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		status := &statusError{code: resp.StatusCode, body: string(payload), retryAfter: retryAfter(resp.Header.Get("Retry-After"))}
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return Completion{}, services.Wrap(marker, "generate", op, "llm rejected request", status)
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Completion{}, services.Wrap(services.ErrExternalTool, "generate", op, "decode response "+snippet(string(payload)), err)
	}
	if decoded.Error != nil {
		return Completion{}, services.Wrap(services.ErrExternalTool, "generate", op, "api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}
	if len(decoded.Choices) == 0 {
		return Completion{}, services.Wrap(services.ErrTransient, "generate", op, "no choices returned", nil)
	}
	choice := decoded.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return Completion{}, services.Wrap(services.ErrTransient, "generate", op,
			fmt.Sprintf("empty content (finish_reason=%q, refusal=%q)", choice.FinishReason, choice.Message.Refusal), nil)
	}
	completion := Completion{Text: text, Model: decoded.Model, FinishReason: choice.FinishReason}
	if decoded.Usage != nil {
		completion.Usage = Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			Cost:         decoded.Usage.Cost,
		}
	}
	return completion, nil
}

// backoff doubles from baseDelay for each failed attempt, capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	delay := c.baseDelay
	for i := 1; i < attempt && delay < c.maxDelay; i++ {
		delay *= 2
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DecodeJSON decodes a model reply into target. Replies wrapped in a code
// fence or surrounded by prose are accepted when a JSON object can be cut out.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	direct := json.Unmarshal([]byte(trimmed), target)
	if direct == nil {
		return nil
	}
	candidate := extractObject(stripFence(trimmed))
	if candidate == "" || candidate == trimmed {
		return fmt.Errorf("%w (payload %s)", direct, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(candidate), target); err != nil {
		return fmt.Errorf("%w (payload %s)", err, snippet(candidate))
	}
	return nil
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimLeft(content[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	return services.Truncate(clean, snippetLimit)
}
