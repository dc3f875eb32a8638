package embedding

import (
	"context"

	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// MockEmbedder is a deterministic bag-of-words embedder: every word is hashed
// into one signed dimension. Texts that share words end up close, which is
// enough to exercise retrieval without a model.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a MockEmbedder of the given dimensions (384 when not positive).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized word histogram of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	for _, w := range Words(text) {
		h := hashWord(w)
		sign := float32(1)
		if h&(1<<31) != 0 {
			sign = -1
		}
		vec[int(h%uint32(e.dimensions))] += sign
	}
	// Empty or word-less text still needs a unit vector.
	vec[0] += 0.01
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Model returns "mock".
func (e *MockEmbedder) Model() string { return "mock" }

func (e *MockEmbedder) Close() error { return nil }
