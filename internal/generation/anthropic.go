package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"quill/internal/config"
	"quill/internal/services"
)

// Anthropic generates text through the Anthropic Messages API.
type Anthropic struct {
	client         anthropic.Client
	model          string
	inputCostPerM  float64
	outputCostPerM float64
}

// NewAnthropic builds the provider from configuration. Extra request options
// are appended after the configured ones.
func NewAnthropic(cfg config.Anthropic, opts ...option.RequestOption) *Anthropic {
	requestOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(base))
	}
	if cfg.TimeoutSeconds > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	requestOpts = append(requestOpts, opts...)
	return &Anthropic{
		client:         anthropic.NewClient(requestOpts...),
		model:          strings.TrimSpace(cfg.Model),
		inputCostPerM:  cfg.InputCostPerM,
		outputCostPerM: cfg.OutputCostPerM,
	}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

// Generate sends a single-turn message and concatenates the text blocks of
// the reply.
func (a *Anthropic) Generate(ctx context.Context, req Request) (Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "anthropic", "reply contained no text (stop_reason "+string(msg.StopReason)+")", nil)
	}
	result := Result{
		Text:         text.String(),
		Provider:     ProviderAnthropic,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	if result.Model == "" {
		result.Model = a.model
	}
	result.Cost = float64(result.InputTokens)*a.inputCostPerM/1e6 + float64(result.OutputTokens)*a.outputCostPerM/1e6
	return result, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "generate", "anthropic", "api unavailable", err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "generate", "anthropic", "api key rejected", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "generate", "anthropic", "message request failed", err)
}
