// Package similarity provides the vector math primitive shared by all
// retrieval and deduplication scoring paths.
package similarity

import "math"

// Cosine computes the cosine similarity of two vectors. It returns 0
// for mismatched lengths and for zero vectors, so callers never have to
// guard against divide-by-zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
