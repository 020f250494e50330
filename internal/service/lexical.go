package service

import (
	"math"
	"regexp"
	"strings"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func allZero(results []domain.SearchResult) bool {
	for _, r := range results {
		if r.Score > 1e-9 {
			return false
		}
	}
	return true
}

// lexicalRerank scores already filtered results by word overlap with the
// query. Used when vector scores carry no signal, e.g. a query made only of
// words the hashing embedder drops.
func lexicalRerank(query string, results []domain.SearchResult) []domain.SearchResult {
	if len(results) == 0 {
		return results
	}
	qset := toTokenSet(query)
	for i := range results {
		results[i].Score = overlapOchiai(qset, results[i].Passage.Content)
	}
	return vectorstore.TopK(results, len(results))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct lowercase words.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}
