package embedding

// OutputLastHiddenState is the token-level output of sentence-transformer
// exports; it is mean-pooled over the attention mask.
const OutputLastHiddenState = "last_hidden_state"

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	// OutputName is the graph output to read. Any name other than
	// OutputLastHiddenState is expected to be an already pooled [1, dims] tensor.
	OutputName string
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.Dimensions <= 0 {
		o.Dimensions = 384
	}
	if o.MaxTokens < 2 {
		o.MaxTokens = 256
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 1000
	}
	if o.OutputName == "" {
		o.OutputName = OutputLastHiddenState
	}
	return o
}

func (o ONNXOptions) tokenLevel() bool {
	return o.OutputName == OutputLastHiddenState
}

// meanPool averages the [seq, dims] hidden states of the attended tokens.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dims : (t+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}
