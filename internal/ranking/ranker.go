package ranking

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// Ranker blends similarity with document priority.
type Ranker struct {
	config           Config
	similarityWeight float64
	priorityWeight   float64
	now              Clock
	logger           *zap.Logger
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithClock sets the clock used for recency.
func WithClock(now Clock) RankerOption {
	return func(r *Ranker) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RankerOption {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRanker creates a Ranker. Zero-valued fields take defaults; weights that
// cannot be normalized yield ErrInvalidWeights.
func NewRanker(config Config, opts ...RankerOption) (*Ranker, error) {
	config.ApplyDefaults()
	ws, wp, err := config.NormalizedWeights()
	if err != nil {
		return nil, err
	}
	r := &Ranker{
		config:           config,
		similarityWeight: ws,
		priorityWeight:   wp,
		now:              time.Now,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Ranker) Config() Config {
	return r.config
}

// Weights returns the normalized similarity and priority weights.
func (r *Ranker) Weights() (similarity, priority float64) {
	return r.similarityWeight, r.priorityWeight
}

// Enabled reports whether priority re-ranking is active.
func (r *Ranker) Enabled() bool {
	return r.config.PriorityEnabled()
}

// FetchK returns how many candidates to request for a final list of topK.
func (r *Ranker) FetchK(topK int, usePriority bool) int {
	if topK <= 0 {
		return 0
	}
	if !usePriority {
		return topK
	}
	return topK * r.config.FetchMultiplier
}

// Score computes the priority and blended score of one candidate.
func (r *Ranker) Score(c models.Candidate, now time.Time) RankedDocument {
	p := PriorityFromMetadata(c.Metadata, r.config.RecencyMaxDays, now)
	return RankedDocument{
		ID:            c.ID,
		Content:       c.Content,
		Metadata:      c.Metadata,
		Similarity:    c.Similarity,
		Priority:      p,
		WeightedScore: r.similarityWeight*c.Similarity + r.priorityWeight*p.Score,
	}
}

// Rank scores candidates and sorts them by weighted score, descending.
// The sort is stable: ties keep the similarity order they arrived in.
func (r *Ranker) Rank(candidates []models.Candidate) []RankedDocument {
	now := r.now()
	ranked := make([]RankedDocument, len(candidates))
	for i, c := range candidates {
		ranked[i] = r.Score(c, now)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore > ranked[j].WeightedScore
	})
	r.logger.Debug("ranked candidates",
		zap.Int("count", len(ranked)),
		zap.Float64("similarity_weight", r.similarityWeight),
		zap.Float64("priority_weight", r.priorityWeight))
	return ranked
}

// RankAndTruncate ranks candidates and keeps the first topK.
func (r *Ranker) RankAndTruncate(candidates []models.Candidate, topK int) []RankedDocument {
	ranked := r.Rank(candidates)
	if topK >= 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Passthrough wraps candidates without re-ordering, for similarity-only retrieval.
// Priorities are still computed so explanations can report them.
func (r *Ranker) Passthrough(candidates []models.Candidate, topK int) []RankedDocument {
	now := r.now()
	n := len(candidates)
	if topK >= 0 && n > topK {
		n = topK
	}
	out := make([]RankedDocument, n)
	for i := 0; i < n; i++ {
		out[i] = r.Score(candidates[i], now)
		out[i].WeightedScore = candidates[i].Similarity
	}
	return out
}
