package explain

import (
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
)

// Input is what the query pipeline knows once an answer has been produced.
type Input struct {
	Query           string
	EmbeddingModel  string
	TopK            int
	PriorityRanking bool
	Documents       []ranking.RankedDocument
	Filters         map[string]string
	LLMProvider     string
	LLMModel        string
	RetrievalTime   time.Duration
	GenerationTime  time.Duration
	TotalTime       time.Duration
	// Overflow is the number of retrieved documents that did not make the final cut.
	Overflow int
}

// Builder assembles explanations.
type Builder struct {
	maxContextTokens int
	now              func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used for explanation timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a Builder. A non-positive budget uses DefaultMaxContextTokens.
func NewBuilder(maxContextTokens int, opts ...Option) *Builder {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	b := &Builder{maxContextTokens: maxContextTokens, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxContextTokens returns the context budget explanations are measured against.
func (b *Builder) MaxContextTokens() int {
	return b.maxContextTokens
}

// Build produces the explanation for one query. It only reports; nothing in
// the input is modified.
func (b *Builder) Build(in Input) *RAGExplanation {
	mode := RetrievalModeSimilarity
	if in.PriorityRanking {
		mode = RetrievalModePriorityWeighted
	}

	labels := FilterLabels(in.Filters)
	docs := make([]RetrievalExplanation, 0, len(in.Documents))
	for i, d := range in.Documents {
		docs = append(docs, NewRetrievalExplanation(d, i+1, labels))
	}

	window := NewContextWindow(in.Documents, b.maxContextTokens)
	if in.Overflow > 0 {
		window.OverflowDocuments = in.Overflow
	}

	filters := make(map[string]string, len(in.Filters))
	for k, v := range in.Filters {
		filters[k] = v
	}

	return &RAGExplanation{
		QueryText:        in.Query,
		EmbeddingModel:   in.EmbeddingModel,
		RetrievalMode:    mode,
		TopK:             in.TopK,
		Documents:        docs,
		ContextWindow:    window,
		ResponseMode:     ResponseModeCompact,
		LLMProvider:      in.LLMProvider,
		LLMModel:         in.LLMModel,
		RetrievalTimeMS:  durationMS(in.RetrievalTime),
		GenerationTimeMS: durationMS(in.GenerationTime),
		TotalTimeMS:      durationMS(in.TotalTime),
		FiltersApplied:   filters,
		Timestamp:        b.now(),
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
