package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/services"
	"quill/internal/services/llm"
)

// Request is one text generation call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Result is the text a provider returned plus its accounting.
type Result struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// Provider names accepted in configuration.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// NewProvider builds the configured primary provider, chained with the
// fallback provider when one is configured and has credentials.
func NewProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "generate", "provider", "config is nil", nil)
	}
	primary, err := providerByName(cfg, cfg.Generation.Provider, logger)
	if err != nil {
		return nil, err
	}
	fallbackName := strings.TrimSpace(cfg.Generation.Fallback)
	if fallbackName == "" || strings.EqualFold(fallbackName, primary.Name()) {
		return primary, nil
	}
	secondary, err := providerByName(cfg, fallbackName, logger)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			logging.NewComponentLogger(logger, "generation").Debug("fallback provider unavailable",
				logging.String("provider", fallbackName), logging.Error(err))
			return primary, nil
		}
		return nil, err
	}
	return NewFallback(logger, primary, secondary), nil
}

func providerByName(cfg *config.Config, name string, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderAnthropic, "claude":
		if strings.TrimSpace(cfg.Anthropic.APIKey) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "generate", "provider", "anthropic.api_key is not set", nil)
		}
		return NewAnthropic(cfg.Anthropic), nil
	case ProviderOpenRouter, "llm":
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "generate", "provider", "llm.api_key is not set", nil)
		}
		return NewOpenRouter(cfg.LLM, llm.WithLogger(logging.NewComponentLogger(logger, "llm"))), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "generate", "provider", fmt.Sprintf("unknown provider %q", name), nil)
	}
}

// Fallback tries providers in order and returns the first success.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallback chains providers. Nil entries are ignored.
func NewFallback(logger *slog.Logger, providers ...Provider) *Fallback {
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fallback{providers: chain, logger: logger}
}

// Name lists the chained providers.
func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

// Generate returns the first provider success. When every provider fails the
// individual errors are joined.
func (f *Fallback) Generate(ctx context.Context, req Request) (Result, error) {
	if len(f.providers) == 0 {
		return Result{}, services.Wrap(services.ErrConfiguration, "generate", "generate text", "no providers configured", nil)
	}
	var errs []error
	for i, provider := range f.providers {
		result, err := provider.Generate(ctx, req)
		if err == nil {
			return result, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		if ctx.Err() != nil {
			break
		}
		if i < len(f.providers)-1 {
			logging.WarnWithContext(f.logger, "generation provider failed; trying fallback", "provider_fallback",
				logging.String("provider", provider.Name()),
				logging.String("fallback", f.providers[i+1].Name()),
				logging.Error(err),
			)
		}
	}
	return Result{}, services.Wrap(services.ErrExternalTool, "generate", "generate text", "all providers failed", errors.Join(errs...))
}
