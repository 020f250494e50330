// Package hashing implements an offline bag-of-words embedder based on the
// hashing trick. It needs no vocabulary, so books can be indexed one at a time.
package hashing

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const DefaultDimension = 512

// Embedder maps every token to one of Dimension buckets with xxhash and
// weights buckets by sublinear term frequency.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string   { return "hashing" }
func (e *Embedder) Dimension() int { return e.dimension }

// Embed never fails except on a cancelled context. Text without any
// indexable token maps to the zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	tf := make(map[uint64]int)
	for _, tok := range e.tokenize(text) {
		tf[xxhash.Sum64String(tok)]++
	}
	acc := make([]float64, e.dimension)
	for h, count := range tf {
		idx := h % uint64(e.dimension)
		w := 1 + math.Log(float64(count))
		// The top bit picks a sign so colliding tokens tend to cancel out.
		if h>>63 == 1 {
			w = -w
		}
		acc[idx] += w
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "so", "such", "into", "about", "through", "during", "before", "after", "out", "off",
		"too", "very", "can", "will", "just", "do", "does", "did", "who", "what", "which", "how", "why", "he", "she",
		"his", "her", "they", "them", "their", "i", "you", "we", "me", "my",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
