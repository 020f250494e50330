package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	passages  []domain.Passage
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == dimension {
		return nil
	}
	if len(s.passages) > 0 {
		return fmt.Errorf("index holds %d-dimensional vectors, cannot switch to %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Insert(_ context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return errors.New("passages and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return domain.ErrIndexUnavailable
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.passages = append(s.passages, passages...)
	for _, v := range vectors {
		s.vectors = append(s.vectors, append([]float32(nil), v...))
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, filter vectorstore.BookFilter, k int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, domain.ErrIndexUnavailable
	}
	if len(vector) != s.dimension {
		return nil, errors.New("vector dimension mismatch")
	}
	if filter.None() {
		return nil, nil
	}
	var results []domain.SearchResult
	for i, p := range s.passages {
		if !filter.Allows(p.BookTitle) {
			continue
		}
		results = append(results, domain.SearchResult{Passage: p, Score: vectorstore.Cosine(s.vectors[i], vector)})
	}
	return vectorstore.TopK(results, k), nil
}

// CountSource reports how many passages of the given file are held.
func (s *Storage) CountSource(_ context.Context, sourceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.passages {
		if p.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.vectors = nil
	s.passages = nil
	return nil
}

func (s *Storage) Close() error { return nil }
