package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/config"
)

// New builds the client for cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	return NewProvider(cfg, cfg.Provider, logger)
}

// NewProvider builds a client for the named provider using cfg for models,
// keys and limits. Cloud providers are rate limited.
func NewProvider(cfg config.LLMConfig, name string, logger *zap.Logger) (*Client, error) {
	local, known := IsLocal(name)
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if !local && !cfg.CloudAllowed() {
		return nil, fmt.Errorf("%w: %s", ErrOfflineMode, name)
	}

	var (
		model     llms.Model
		modelName string
		err       error
	)
	switch name {
	case ProviderOllama:
		modelName = cfg.OllamaModel
		opts := []ollama.Option{ollama.WithModel(modelName)}
		if cfg.OllamaBaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaBaseURL))
		}
		model, err = ollama.New(opts...)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: openai", ErrMissingAPIKey)
		}
		modelName = cfg.OpenAIModel
		model, err = openai.New(openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(modelName))
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: anthropic", ErrMissingAPIKey)
		}
		modelName = cfg.AnthropicModel
		model, err = anthropic.New(anthropic.WithToken(cfg.AnthropicAPIKey), anthropic.WithModel(modelName))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
	}

	opts := []Option{
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithLogger(logger),
	}
	if !local {
		opts = append(opts, WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	return NewClient(model, name, modelName, opts...), nil
}

// Providers lists every provider with its model and whether it can be used
// under cfg. No network calls are made.
func Providers(cfg config.LLMConfig) []ProviderInfo {
	names := ProviderNames()
	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		local, _ := IsLocal(name)
		info := ProviderInfo{
			Name:      name,
			Local:     local,
			Available: true,
			Current:   name == cfg.Provider,
		}
		switch name {
		case ProviderOllama:
			info.Model = cfg.OllamaModel
		case ProviderOpenAI:
			info.Model = cfg.OpenAIModel
			if cfg.OpenAIAPIKey == "" {
				info.Available, info.Reason = false, "OPENAI_API_KEY not set"
			}
		case ProviderAnthropic:
			info.Model = cfg.AnthropicModel
			if cfg.AnthropicAPIKey == "" {
				info.Available, info.Reason = false, "ANTHROPIC_API_KEY not set"
			}
		}
		if !local && !cfg.CloudAllowed() {
			info.Available, info.Reason = false, "offline mode"
		}
		out = append(out, info)
	}
	return out
}
