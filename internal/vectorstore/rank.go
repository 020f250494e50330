package vectorstore

import (
	"cmp"
	"math"
	"slices"

	"bookrag/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector. Vectors of different length are compared on their common prefix.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK orders results by descending score, keeps the first k and numbers
// them from 1. Equal scores keep their input order.
func TopK(results []domain.SearchResult, k int) []domain.SearchResult {
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
