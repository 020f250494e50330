// Package embedding defines how text becomes vectors for the passage index.
package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Embed returns one vector per input text, in input order.
type Embedder interface {
	Name() string
	// Dimension is the vector length, or 0 until the first successful
	// Embed call for remote models that report it lazily.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batches splits texts into consecutive groups of at most size items.
func Batches(texts []string, size int) [][]string {
	if size <= 0 || len(texts) <= size {
		if len(texts) == 0 {
			return nil
		}
		return [][]string{texts}
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
