package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	embeddingProviders = map[string]bool{"mock": true, "ollama": true, "openai": true, "onnx": true}
	vectorBackends     = map[string]bool{"memory": true, "pgvector": true}
	llmProviders       = map[string]bool{"ollama": true, "openai": true, "anthropic": true}
)

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if !embeddingProviders[c.Embedding.Provider] {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider: %s", c.Embedding.Provider),
		})
	}
	if c.Embedding.Provider == "onnx" && c.Embedding.ModelPath == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.model_path",
			Message: "model_path is required for the onnx provider",
		})
	}
	if c.Embedding.Dimensions < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimensions",
			Message: "dimensions must be positive",
		})
	}
	if c.Embedding.BaseURL != "" {
		if _, err := url.Parse(c.Embedding.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if !vectorBackends[c.Vector.Backend] {
		errors = append(errors, ValidationError{
			Field:   "vector.backend",
			Message: fmt.Sprintf("unknown vector backend: %s", c.Vector.Backend),
		})
	}
	if c.Vector.Backend == "pgvector" && c.Vector.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "vector.dsn",
			Message: "dsn is required for the pgvector backend",
		})
	}

	if c.Search.TopK < 1 || c.Search.TopK > c.Search.MaxTopK {
		errors = append(errors, ValidationError{
			Field:   "search.top_k",
			Message: fmt.Sprintf("top_k must be between 1 and %d", c.Search.MaxTopK),
		})
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.keyword_weight",
			Message: "keyword_weight must be between 0 and 1",
		})
	}
	if c.Search.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkOverlap >= c.Search.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "search.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if err := c.Ranking.Validate(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "ranking",
			Message: err.Error(),
		})
	}

	if !llmProviders[c.LLM.Provider] {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown llm provider: %s", c.LLM.Provider),
		})
	} else if c.LLM.Provider != "ollama" && !c.LLM.CloudAllowed() {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("%s is a cloud provider and cloud LLMs are disabled", c.LLM.Provider),
		})
	}
	if c.LLM.OllamaBaseURL != "" {
		if u, err := url.Parse(c.LLM.OllamaBaseURL); err != nil || !strings.HasPrefix(u.Scheme, "http") {
			errors = append(errors, ValidationError{
				Field:   "llm.ollama_base_url",
				Message: "invalid Ollama base URL",
			})
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}
	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be positive",
		})
	}
	if c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Explain.MaxContextTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "explain.max_context_tokens",
			Message: "max_context_tokens must be positive",
		})
	}

	if c.Audit.RetentionDays < 1 {
		errors = append(errors, ValidationError{
			Field:   "audit.retention_days",
			Message: "retention_days must be positive",
		})
	}

	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "watch.extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	return errors
}
