package vector

import (
	"math"

	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// CosineSimilarity returns the similarity of two normalized vectors clamped to [0,1].
func CosineSimilarity(a, b []float32) float64 {
	return utils.Clamp01(InnerProduct(a, b))
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// DistanceToSimilarity converts a pgvector cosine distance (0..2) to a
// similarity in [0,1].
func DistanceToSimilarity(d float64) float64 {
	return utils.Clamp01(1 - d)
}
