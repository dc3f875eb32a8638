package config

import (
	"path/filepath"
	"time"
)

const defaultDataDir = ".digital-twin"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.DataDir, "twin.db")
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = filepath.Join(cfg.Storage.DataDir, "indices", "bleve")
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = filepath.Join(cfg.Storage.DataDir, "indices", "vectors.bin")
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Table == "" {
		cfg.Vector.Table = "twin_chunks"
	}

	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
	if cfg.Search.KeywordWeight == 0 {
		cfg.Search.KeywordWeight = 0.3
	}
	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 1024
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 100
	}
	if cfg.Search.MessageGroupWindow == 0 {
		cfg.Search.MessageGroupWindow = 5 * time.Minute
	}
	if cfg.Search.WhatsAppGroupWindow == 0 {
		cfg.Search.WhatsAppGroupWindow = 30 * time.Minute
	}

	cfg.Ranking.ApplyDefaults()

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = "mistral"
	}
	if cfg.LLM.OpenAIModel == "" {
		cfg.LLM.OpenAIModel = "gpt-4-turbo"
	}
	if cfg.LLM.AnthropicModel == "" {
		cfg.LLM.AnthropicModel = "claude-3-sonnet-20240229"
	}
	if cfg.LLM.AllowCloudLLM == nil {
		t := true
		cfg.LLM.AllowCloudLLM = &t
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 1
	}
	if cfg.LLM.RateBurst == 0 {
		cfg.LLM.RateBurst = 3
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	if cfg.Explain.MaxContextTokens == 0 {
		cfg.Explain.MaxContextTokens = 4000
	}

	if cfg.Audit.Enabled == nil {
		t := true
		cfg.Audit.Enabled = &t
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 365
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".markdown", ".eml", ".mbox", ".json", ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".html", ".htm"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
