package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/chunker"
	"bookrag/internal/domain"
	"bookrag/internal/embedding/hashing"
	"bookrag/internal/vectorstore/memory"
)

// countingEmbedder wraps the hashing embedder and records calls.
type countingEmbedder struct {
	*hashing.Embedder
	mu    sync.Mutex
	calls int
	err   error
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{Embedder: hashing.NewEmbedder(256)}
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.Embedder.Embed(ctx, texts)
}

func (e *countingEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newService(t *testing.T, emb *countingEmbedder, ttl time.Duration) (*RetrievalService, *memory.Storage) {
	t.Helper()
	ch, err := chunker.NewWindowChunker(120, 20)
	require.NoError(t, err)
	store := memory.NewStorage()
	return NewRetrievalService(ch, emb, store, Options{QueryCacheTTL: ttl}), store
}

func chapter(book, text string) domain.Chapter {
	return domain.Chapter{Name: "1", Content: text, SourceID: strings.ToLower(book) + ".epub", BookTitle: book}
}

func seriesFixture(t *testing.T, svc *RetrievalService) {
	t.Helper()
	ctx := context.Background()
	books := map[string]string{
		"Elantris":   "Raoden woke to find the Shaod had taken him. Raoden was thrown into Elantris. Galladon helped Raoden survive in the fallen city.",
		"Warbreaker": "Siri was sent to T'Telir to marry the God King. Vivenna followed. Lightsong doubted his own divinity while Raoden was never mentioned here.",
		"Mistborn":   "Vin met Kelsier. Kelsier was Mistborn. Raoden Raoden Raoden is a name a careless fan might put here to bait the search.",
	}
	for title, text := range books {
		n, err := svc.Ingest(ctx, title, []domain.Chapter{chapter(title, text)})
		require.NoError(t, err)
		require.Positive(t, n)
	}
}

func TestSearch_OnlyReadBooks(t *testing.T) {
	emb := newCountingEmbedder()
	svc, _ := newService(t, emb, 0)
	seriesFixture(t, svc)

	res, err := svc.Search(context.Background(), "Who is Raoden?", []string{"Elantris", "Warbreaker"}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.LessOrEqual(t, len(res), 3)
	for _, r := range res {
		assert.Contains(t, []string{"Elantris", "Warbreaker"}, r.Passage.BookTitle)
	}
	assert.Equal(t, "Elantris", res[0].Passage.BookTitle)
}

func TestSearch_EmptyReadSetSkipsEmbedder(t *testing.T) {
	emb := newCountingEmbedder()
	svc, _ := newService(t, emb, 0)
	seriesFixture(t, svc)
	before := emb.Calls()

	res, err := svc.Search(context.Background(), "Who is Raoden?", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
	res, err = svc.Search(context.Background(), "Who is Raoden?", []string{}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, before, emb.Calls())
}

func TestSearch_UnavailableIndexIsEmpty(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), 0)
	res, err := svc.Search(context.Background(), "Who is Raoden?", []string{"Elantris"}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearch_DefaultK(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), 0)
	long := strings.Repeat("Raoden walked the streets of Elantris again. ", 40)
	_, err := svc.Ingest(context.Background(), "Elantris", []domain.Chapter{chapter("Elantris", long)})
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), "Raoden", []string{"Elantris"}, 0)
	require.NoError(t, err)
	assert.Len(t, res, DefaultTopK)
}

func TestSearch_EmbedderErrorPropagates(t *testing.T) {
	emb := newCountingEmbedder()
	svc, _ := newService(t, emb, 0)
	emb.err = errors.New("model offline")
	_, err := svc.Search(context.Background(), "q", []string{"Elantris"}, 3)
	assert.ErrorContains(t, err, "model offline")
}

func TestSearch_CachesQueryEmbeddings(t *testing.T) {
	emb := newCountingEmbedder()
	svc, _ := newService(t, emb, time.Minute)
	seriesFixture(t, svc)
	before := emb.Calls()

	for range 3 {
		_, err := svc.Search(context.Background(), "Who is Raoden?", []string{"Elantris"}, 3)
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, emb.Calls())
}

func TestSearchAll_IgnoresReadingState(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), 0)
	seriesFixture(t, svc)
	res, err := svc.SearchAll(context.Background(), "Kelsier Mistborn", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "Mistborn", res[0].Passage.BookTitle)
}

func TestIngest_WhitespaceChapterProducesNothing(t *testing.T) {
	emb := newCountingEmbedder()
	svc, store := newService(t, emb, 0)

	n, err := svc.Ingest(context.Background(), "Elantris", []domain.Chapter{chapter("Elantris", "   \n\t  ")})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, emb.Calls())

	count, err := store.CountSource(context.Background(), "elantris.epub")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_TagsPassagesWithBookTitle(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), 0)
	ch := chapter("placeholder", "Sarene studied the politics of Arelon with great care.")
	n, err := svc.Ingest(context.Background(), "Elantris", []domain.Chapter{ch})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := svc.Search(context.Background(), "Sarene", []string{"Elantris"}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Elantris", res[0].Passage.BookTitle)
}

func TestReset(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), time.Minute)
	seriesFixture(t, svc)
	require.NoError(t, svc.Reset(context.Background()))
	res, err := svc.Search(context.Background(), "Raoden", []string{"Elantris"}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLexicalRerank(t *testing.T) {
	in := []domain.SearchResult{
		{Passage: domain.Passage{Content: "nothing relevant"}},
		{Passage: domain.Passage{Content: "the the the"}},
		{Passage: domain.Passage{Content: "what is the thing"}},
	}
	out := lexicalRerank("What is the", in)
	require.Len(t, out, 3)
	assert.Equal(t, "what is the thing", out[0].Passage.Content)
	assert.Equal(t, 1, out[0].Rank)
	assert.True(t, allZero([]domain.SearchResult{{Score: 0}}))
	assert.False(t, allZero(out))
}
