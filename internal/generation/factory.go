package generation

import (
	"context"
	"fmt"
	"time"
)

// Config selects and tunes the model provider.
type Config struct {
	// Provider is one of "gemini", "openai", "anthropic", "mock".
	Provider       string
	Model          string
	FallbackModels []string
	APIKey         string
	BaseURL        string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
}

var defaultModels = map[string]string{
	"gemini":    "gemini-1.5-flash",
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku-latest",
	"mock":      "mock",
}

// NewProvider creates a Provider from configuration, wrapped in the model fallback chain.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	primary := cfg.Model
	if primary == "" {
		primary = defaultModels[cfg.Provider]
	}

	var providers []Provider
	switch cfg.Provider {
	case "gemini":
		client, err := NewGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini provider: %w", err)
		}
		fallbacks := cfg.FallbackModels
		if len(fallbacks) == 0 {
			fallbacks = DefaultGeminiModels
		}
		for _, model := range ModelChain(primary, fallbacks) {
			providers = append(providers, NewGeminiProvider(client, model))
		}
	case "openai":
		for _, model := range ModelChain(primary, cfg.FallbackModels) {
			p, err := NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, model)
			if err != nil {
				return nil, fmt.Errorf("initializing openai provider: %w", err)
			}
			providers = append(providers, p)
		}
	case "anthropic":
		for _, model := range ModelChain(primary, cfg.FallbackModels) {
			p, err := NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, model)
			if err != nil {
				return nil, fmt.Errorf("initializing anthropic provider: %w", err)
			}
			providers = append(providers, p)
		}
	case "mock":
		return NewMockProvider().WithModel(primary).WithDefault(MockResponse{Text: DemoQuiz}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	return WithModelFallback(providers...), nil
}

// NewGeneratorFromConfig builds the provider chain and the Generator around it.
func NewGeneratorFromConfig(ctx context.Context, cfg Config) (*Generator, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var opts []GeneratorOption
	if cfg.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, WithTemperature(cfg.Temperature))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return NewGenerator(provider, opts...), nil
}

// ModelChain returns primary followed by fallbacks, skipping blanks and repeats.
func ModelChain(primary string, fallbacks []string) []string {
	seen := make(map[string]struct{}, len(fallbacks)+1)
	var out []string
	for _, m := range append([]string{primary}, fallbacks...) {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
