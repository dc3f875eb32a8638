package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestONNXOptions_Defaults(t *testing.T) {
	o := ONNXOptions{ModelPath: "/models/minilm.onnx"}.withDefaults()
	assert.Equal(t, 384, o.Dimensions)
	assert.Equal(t, 256, o.MaxTokens)
	assert.Equal(t, 1000, o.CacheSize)
	assert.True(t, o.tokenLevel())

	o = ONNXOptions{Dimensions: 768, MaxTokens: 512, OutputName: "sentence_embedding"}.withDefaults()
	assert.Equal(t, 768, o.Dimensions)
	assert.False(t, o.tokenLevel())
}

func TestMeanPool_IgnoresPadding(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	got := meanPool(hidden, []int64{1, 1, 0}, 2)
	assert.Equal(t, []float32{2, 3}, got)
	assert.Equal(t, []float32{0, 0}, meanPool(hidden, []int64{0, 0, 0}, 2))
}
