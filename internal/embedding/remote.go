package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// RemoteEmbedder embeds text through a model server (Ollama or OpenAI).
type RemoteEmbedder struct {
	impl       embeddings.Embedder
	provider   string
	model      string
	dimensions int
	logger     *zap.Logger
}

// RemoteOption configures a RemoteEmbedder.
type RemoteOption func(*RemoteEmbedder)

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(r *RemoteEmbedder) {
		if l != nil {
			r.logger = l
		}
	}
}

func newRemote(client embeddings.EmbedderClient, provider, model string, dimensions int, opts []RemoteOption) (*RemoteEmbedder, error) {
	impl, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(32))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", provider, err)
	}
	r := &RemoteEmbedder{
		impl:       impl,
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewOllamaEmbedder embeds through a local Ollama server.
func NewOllamaEmbedder(model, baseURL string, dimensions int, opts ...RemoteOption) (*RemoteEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
	}
	return newRemote(llm, "ollama", model, dimensions, opts)
}

// NewOpenAIEmbedder embeds through the OpenAI API.
func NewOpenAIEmbedder(model, apiKey string, dimensions int, opts ...RemoteOption) (*RemoteEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithEmbeddingModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return newRemote(llm, "openai", model, dimensions, opts)
}

func (r *RemoteEmbedder) check(v []float32) error {
	if r.dimensions > 0 && len(v) != r.dimensions {
		return fmt.Errorf("%s model %s returned %d dimensions, configured %d", r.provider, r.model, len(v), r.dimensions)
	}
	return nil
}

// Embed returns the embedding of a single query text.
func (r *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := r.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := r.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch returns embeddings for many document texts.
func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := r.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", r.provider, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := r.check(v); err != nil {
			return nil, err
		}
	}
	r.logger.Debug("embedded batch", zap.String("provider", r.provider), zap.Int("texts", len(texts)))
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (r *RemoteEmbedder) Dimensions() int {
	return r.dimensions
}

// Model returns the model name.
func (r *RemoteEmbedder) Model() string {
	return r.model
}

// Close is a no-op; the HTTP client holds no resources.
func (r *RemoteEmbedder) Close() error {
	return nil
}
