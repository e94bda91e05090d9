package generation

import (
	"context"

	"quill/internal/config"
	"quill/internal/services"
	"quill/internal/services/llm"
)

// OpenRouter generates text through an OpenRouter-compatible chat endpoint.
type OpenRouter struct {
	client *llm.Client
}

// NewOpenRouter builds the provider from configuration.
func NewOpenRouter(cfg config.LLM, opts ...llm.Option) *OpenRouter {
	return &OpenRouter{client: llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)}
}

func (o *OpenRouter) Name() string { return ProviderOpenRouter }

func (o *OpenRouter) Generate(ctx context.Context, req Request) (Result, error) {
	completion, err := o.client.Complete(ctx, req.System, req.Prompt, req.MaxTokens)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "openrouter", "completion failed", err)
	}
	return Result{
		Text:         completion.Text,
		Provider:     ProviderOpenRouter,
		Model:        completion.Model,
		InputTokens:  completion.Usage.InputTokens,
		OutputTokens: completion.Usage.OutputTokens,
		Cost:         completion.Usage.Cost,
	}, nil
}
