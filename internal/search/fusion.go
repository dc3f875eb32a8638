package search

import (
	"sort"

	"github.com/flatplanetpl/poc-digital-twin/internal/keyword"
	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
)

// FusedResult holds a chunk ID and fused keyword/semantic scores.
type FusedResult struct {
	ChunkID       string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores returns semantic scores as-is (already 0-1 for cosine).
func NormalizeSemanticScores(results []*vector.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	for _, r := range results {
		normalized[r.ID] = r.Score
	}
	return normalized
}

// Fuse re-scores the semantic pool with keyword scores. Keyword-only hits
// are dropped because they did not pass the vector-side filters. The result
// is sorted by fused score; ties keep the semantic order given by pool.
func Fuse(pool []string, keywordScores, semanticScores map[string]float64, keywordWeight float64) []*FusedResult {
	if keywordWeight < 0 {
		keywordWeight = 0
	}
	if keywordWeight > 1 {
		keywordWeight = 1
	}
	semanticWeight := 1 - keywordWeight
	results := make([]*FusedResult, 0, len(pool))
	for _, id := range pool {
		r := &FusedResult{
			ChunkID:       id,
			KeywordScore:  keywordScores[id],
			SemanticScore: semanticScores[id],
		}
		r.Score = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
