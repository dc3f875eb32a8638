// Package config provides configuration loading and structs for the digital twin service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Ranking   ranking.Config  `yaml:"ranking"`
	LLM       LLMConfig       `yaml:"llm"`
	Explain   ExplainConfig   `yaml:"explain"`
	Audit     AuditConfig     `yaml:"audit"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// DatabasePath is the sqlite file holding the registry, chat history and audit log.
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // mock | ollama | openai | onnx
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects and configures the vector store.
type VectorConfig struct {
	Backend string `yaml:"backend"` // memory | pgvector
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

// SearchConfig holds retrieval and chunking settings.
type SearchConfig struct {
	TopK           int     `yaml:"top_k"`
	MaxTopK        int     `yaml:"max_top_k"`
	KeywordEnabled *bool   `yaml:"keyword_enabled"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	// MessageGroupWindow joins consecutive Messenger messages from one sender.
	MessageGroupWindow time.Duration `yaml:"message_group_window"`
	// WhatsAppGroupWindow does the same for WhatsApp chat exports.
	WhatsAppGroupWindow time.Duration `yaml:"whatsapp_group_window"`
}

// KeywordOn reports whether hybrid keyword matching is enabled; defaults to true when unset.
func (s SearchConfig) KeywordOn() bool {
	return s.KeywordEnabled == nil || *s.KeywordEnabled
}

// LLMConfig holds completion provider settings.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // ollama | openai | anthropic
	OllamaModel     string `yaml:"ollama_model"`
	OllamaBaseURL   string `yaml:"ollama_base_url"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// OfflineMode restricts completions to local providers.
	OfflineMode   bool  `yaml:"offline_mode"`
	AllowCloudLLM *bool `yaml:"allow_cloud_llm"`

	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"` // cloud requests per second
	RateBurst   int           `yaml:"rate_burst"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// CloudAllowed reports whether cloud providers may be used.
func (l LLMConfig) CloudAllowed() bool {
	if l.OfflineMode {
		return false
	}
	return l.AllowCloudLLM == nil || *l.AllowCloudLLM
}

// ExplainConfig holds explainability settings.
type ExplainConfig struct {
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled       *bool `yaml:"enabled"`
	Queries       bool  `yaml:"queries"`
	RetentionDays int   `yaml:"retention_days"`
}

// On reports whether audit logging is enabled; defaults to true when unset.
func (a AuditConfig) On() bool {
	return a.Enabled == nil || *a.Enabled
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, loads a sibling .env file,
// applies environment overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	expandPaths(&cfg, configDir)

	return &cfg, nil
}

// Default returns a configuration built only from defaults and the environment,
// for running without a config file. Relative paths resolve against dir.
func Default(dir string) (*Config, error) {
	if err := LoadEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	expandPaths(&cfg, dir)
	return &cfg, nil
}

// LoadEnv loads variables from the given .env files. Missing files are ignored
// and variables already set in the environment win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and mode switches from environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.LLM.OllamaBaseURL = v
	}
	if v := os.Getenv("OFFLINE_MODE"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			cfg.LLM.OfflineMode = true
		case "0", "false", "no":
			cfg.LLM.OfflineMode = false
		}
	}
}

// Save writes the config to path. API keys are not persisted.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.LLM.OpenAIAPIKey = ""
	out.LLM.AnthropicAPIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir,
// "~/" is the home directory, and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
