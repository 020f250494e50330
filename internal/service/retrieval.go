package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"bookrag/internal/domain"
	"bookrag/internal/embedding"
	"bookrag/internal/vectorstore"
)

// DefaultTopK is used when a search asks for k <= 0.
const DefaultTopK = 5

// Options tunes a RetrievalService.
type Options struct {
	Logger *zap.Logger
	// QueryCacheTTL keeps query embeddings around; zero disables the cache.
	QueryCacheTTL time.Duration
}

// RetrievalService ingests chapters into the passage index and answers
// searches restricted to a set of books.
type RetrievalService struct {
	chunker  domain.Chunker
	embedder embedding.Embedder
	store    vectorstore.Storage
	log      *zap.Logger
	queries  *gocache.Cache

	// writeMu serializes Init+Insert so parallel ingestion never interleaves
	// writes to the index.
	writeMu sync.Mutex
}

func NewRetrievalService(chunker domain.Chunker, embedder embedding.Embedder, store vectorstore.Storage, opts Options) *RetrievalService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &RetrievalService{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		log:      log,
	}
	if opts.QueryCacheTTL > 0 {
		s.queries = gocache.New(opts.QueryCacheTTL, 2*opts.QueryCacheTTL)
	}
	return s
}

// Ingest chunks, embeds and stores the chapters of one book and returns the
// number of passages written. Whitespace-only chapters are skipped; a book
// without any passage touches neither the embedder nor the index.
func (s *RetrievalService) Ingest(ctx context.Context, bookTitle string, chapters []domain.Chapter) (int, error) {
	var passages []domain.Passage
	for _, ch := range chapters {
		if strings.TrimSpace(ch.Content) == "" {
			continue
		}
		ch.BookTitle = bookTitle
		ps, err := s.chunker.Chunk(ch)
		if err != nil {
			return 0, fmt.Errorf("chunk %q: %w", bookTitle, err)
		}
		passages = append(passages, ps...)
	}
	if len(passages) == 0 {
		s.log.Info("book has no text to index", zap.String("book", bookTitle))
		return 0, nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %q: %w", bookTitle, err)
	}
	if len(vectors) != len(passages) {
		return 0, fmt.Errorf("embed %q: got %d vectors for %d passages", bookTitle, len(vectors), len(passages))
	}
	dim := s.embedder.Dimension()
	if dim == 0 {
		dim = len(vectors[0])
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.Init(ctx, dim); err != nil {
		return 0, fmt.Errorf("init index: %w", err)
	}
	if err := s.store.Insert(ctx, passages, vectors); err != nil {
		return 0, fmt.Errorf("store %q: %w", bookTitle, err)
	}
	s.log.Info("book indexed", zap.String("book", bookTitle), zap.Int("passages", len(passages)))
	return len(passages), nil
}

// Search returns up to k passages relevant to query, drawn only from
// allowedTitles. With no allowed titles the result is empty and neither the
// embedder nor the index is consulted. A missing index also yields an empty
// result.
func (s *RetrievalService) Search(ctx context.Context, query string, allowedTitles []string, k int) ([]domain.SearchResult, error) {
	return s.search(ctx, query, vectorstore.OnlyBooks(allowedTitles...), k)
}

// SearchAll searches every book in the index. It ignores what the reader has
// read and is meant for diagnostics only.
func (s *RetrievalService) SearchAll(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	return s.search(ctx, query, vectorstore.AllBooks(), k)
}

func (s *RetrievalService) search(ctx context.Context, query string, filter vectorstore.BookFilter, k int) ([]domain.SearchResult, error) {
	if filter.None() || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.store.Search(ctx, vec, filter, k)
	if errors.Is(err, domain.ErrIndexUnavailable) {
		s.log.Warn("passage index unavailable, returning no results")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	allowed := results[:0]
	for _, r := range results {
		if filter.Allows(r.Passage.BookTitle) {
			allowed = append(allowed, r)
		}
	}
	if allZero(allowed) {
		allowed = lexicalRerank(query, allowed)
	}
	return allowed, nil
}

func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := s.embedder.Name() + "\x00" + query
	if s.queries != nil {
		if v, ok := s.queries.Get(key); ok {
			return v.([]float32), nil
		}
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("got %d vectors for one query", len(vecs))
	}
	if s.queries != nil {
		s.queries.SetDefault(key, vecs[0])
	}
	return vecs[0], nil
}

// Reset empties the index and the query cache.
func (s *RetrievalService) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.queries != nil {
		s.queries.Flush()
	}
	return s.store.Clear(ctx)
}
