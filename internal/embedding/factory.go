package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/config"
)

// NewFromConfig builds the configured embedder. Remote embedders are
// wrapped with an LRU cache; ONNX caches internally.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "mock":
		return NewMockEmbedder(ec.Dimensions), nil
	case "ollama", "":
		baseURL := ec.BaseURL
		if baseURL == "" {
			baseURL = cfg.LLM.OllamaBaseURL
		}
		e, err := NewOllamaEmbedder(ec.Model, baseURL, ec.Dimensions, WithRemoteLogger(logger))
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(e, ec.CacheSize), nil
	case "openai":
		e, err := NewOpenAIEmbedder(ec.Model, cfg.LLM.OpenAIAPIKey, ec.Dimensions, WithRemoteLogger(logger))
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(e, ec.CacheSize), nil
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  ec.ModelPath,
			Dimensions: ec.Dimensions,
			MaxTokens:  ec.MaxTokens,
			CacheSize:  ec.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", ec.Provider)
	}
}
