//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoONNX = errors.New("onnx embedder requires CGO; build with CGO_ENABLED=1 and the onnxruntime library")

// ONNXEmbedder is unavailable without CGO; see onnx.go.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails without CGO.
func NewONNXEmbedder(ONNXOptions) (*ONNXEmbedder, error) {
	return nil, errNoONNX
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error)          { return nil, errNoONNX }
func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, errNoONNX }
func (e *ONNXEmbedder) Dimensions() int                                          { return 0 }
func (e *ONNXEmbedder) Model() string                                            { return "" }
func (e *ONNXEmbedder) CacheStats() CacheStats                                   { return CacheStats{} }
func (e *ONNXEmbedder) Close() error                                             { return nil }
