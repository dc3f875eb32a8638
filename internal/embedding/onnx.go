//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// ONNXEmbedder runs a sentence-transformer exported to ONNX in process. It
// needs CGO and the onnxruntime shared library, and is the only embedder
// that keeps personal text on the machine without a local server.
type ONNXEmbedder struct {
	mu        sync.Mutex
	opts      ONNXOptions
	model     string
	tokenizer Tokenizer
	cache     *EmbeddingCache
	session   *ort.AdvancedSession
	ids       *ort.Tensor[int64]
	mask      *ort.Tensor[int64]
	types     *ort.Tensor[int64]
	out       *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model and allocates the fixed-shape tensors
// reused by every Embed call.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	opts = opts.withDefaults()
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		opts:      opts,
		model:     strings.TrimSuffix(filepath.Base(opts.ModelPath), filepath.Ext(opts.ModelPath)),
		tokenizer: HashTokenizer{},
		cache:     NewEmbeddingCache(opts.CacheSize),
	}
	if err := e.allocate(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) allocate() error {
	seq := ort.NewShape(1, int64(e.opts.MaxTokens))
	var err error
	if e.ids, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.types, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outShape := ort.NewShape(1, int64(e.opts.Dimensions))
	if e.opts.tokenLevel() {
		outShape = ort.NewShape(1, int64(e.opts.MaxTokens), int64(e.opts.Dimensions))
	}
	if e.out, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(e.opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{e.opts.OutputName},
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.out},
		nil)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session for %s: %w", e.opts.ModelPath, err)
	}
	return nil
}

// Embed returns the normalized sentence embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ids, mask, types := e.tokenizer.Tokenize(text, e.opts.MaxTokens)
	copy(e.ids.GetData(), ids)
	copy(e.mask.GetData(), mask)
	copy(e.types.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference failed: %w", err)
	}

	var vec []float32
	if e.opts.tokenLevel() {
		vec = meanPool(e.out.GetData(), mask, e.opts.Dimensions)
	} else {
		vec = append([]float32(nil), e.out.GetData()[:e.opts.Dimensions]...)
	}
	utils.NormalizeL2(vec)
	e.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch embeds each text in order; the session runs one sequence at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *ONNXEmbedder) Dimensions() int { return e.opts.Dimensions }

// Model returns the model file name without its extension.
func (e *ONNXEmbedder) Model() string { return e.model }

// CacheStats reports the embedding cache counters.
func (e *ONNXEmbedder) CacheStats() CacheStats { return e.cache.Stats() }

// Close destroys the session and every tensor.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.ids, e.mask, e.types} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.out != nil {
		_ = e.out.Destroy()
	}
	e.ids, e.mask, e.types, e.out = nil, nil, nil, nil
	return err
}
