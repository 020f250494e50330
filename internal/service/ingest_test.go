package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/catalog"
	"bookrag/internal/domain"
	"bookrag/internal/extractor"
)

// stubExtractor serves sections keyed by path.
type stubExtractor struct {
	sections map[string][]extractor.Section
}

func (s stubExtractor) Title(string) (string, error) { return "", nil }

func (s stubExtractor) Sections(path string) ([]extractor.Section, error) {
	secs, ok := s.sections[path]
	if !ok {
		return nil, errors.New("not an epub")
	}
	return secs, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		domain.BookRecord{Title: "Elantris", SourceID: "elantris.epub", Path: "/books/elantris.epub"},
		domain.BookRecord{Title: "Warbreaker", SourceID: "warbreaker.epub", Path: "/books/warbreaker.epub"},
		domain.BookRecord{Title: "Broken", SourceID: "broken.epub", Path: "/books/broken.epub"},
		domain.BookRecord{Title: "Blank", SourceID: "blank.epub", Path: "/books/blank.epub"},
	)
}

func testExtractor() stubExtractor {
	return stubExtractor{sections: map[string][]extractor.Section{
		"/books/elantris.epub": {
			{Name: "Prologue", Text: "Elantris was beautiful, once."},
			{Name: "Chapter 1", Text: "Prince Raoden of Arelon awoke early."},
		},
		"/books/warbreaker.epub": {{Name: "Chapter 1", Text: "Vivenna and Siri argued about Hallandren."}},
		"/books/blank.epub":      {{Name: "Cover", Text: "  \n "}},
	}}
}

func TestIngestCatalog(t *testing.T) {
	emb := newCountingEmbedder()
	svc, store := newService(t, emb, 0)
	cat := testCatalog()

	var mu sync.Mutex
	var progressed []string
	results, err := svc.IngestCatalog(context.Background(), cat, testExtractor(), IngestOptions{
		Workers: 3,
		Progress: func(r BookResult) {
			mu.Lock()
			defer mu.Unlock()
			progressed = append(progressed, r.SourceID)
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Len(t, progressed, 4)

	byID := map[string]BookResult{}
	for _, r := range results {
		byID[r.SourceID] = r
	}
	assert.Equal(t, 2, byID["elantris.epub"].Passages)
	assert.Equal(t, 1, byID["warbreaker.epub"].Passages)
	assert.Zero(t, byID["blank.epub"].Passages)
	var exErr *domain.ExtractionError
	assert.ErrorAs(t, byID["broken.epub"].Err, &exErr)

	// Extraction failures stay pending; everything else is processed.
	pending := cat.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "broken.epub", pending[0].SourceID)

	n, err := store.CountSource(context.Background(), "elantris.epub")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := svc.Search(context.Background(), "Raoden Arelon", []string{"Elantris"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "Elantris", res[0].Passage.BookTitle)
}

func TestIngestCatalog_SkipIndexed(t *testing.T) {
	emb := newCountingEmbedder()
	svc, _ := newService(t, emb, 0)

	first := testCatalog()
	_, err := svc.IngestCatalog(context.Background(), first, testExtractor(), IngestOptions{Workers: 1})
	require.NoError(t, err)
	calls := emb.Calls()

	second := testCatalog()
	results, err := svc.IngestCatalog(context.Background(), second, testExtractor(), IngestOptions{Workers: 2, SkipIndexed: true})
	require.NoError(t, err)

	for _, r := range results {
		if r.SourceID == "elantris.epub" || r.SourceID == "warbreaker.epub" {
			assert.True(t, r.AlreadyIndexed, r.SourceID)
		}
	}
	assert.Equal(t, calls, emb.Calls())
	book, ok := second.Get("elantris.epub")
	require.True(t, ok)
	assert.True(t, book.Processed)
}

func TestIngestCatalog_EmbedFailureAborts(t *testing.T) {
	emb := newCountingEmbedder()
	emb.err = errors.New("rate limited")
	svc, _ := newService(t, emb, 0)
	cat := testCatalog()

	_, err := svc.IngestCatalog(context.Background(), cat, testExtractor(), IngestOptions{Workers: 2})
	assert.ErrorContains(t, err, "rate limited")
	_, ok := cat.Get("elantris.epub")
	require.True(t, ok)
	for _, b := range cat.Books() {
		if b.SourceID == "elantris.epub" || b.SourceID == "warbreaker.epub" {
			assert.False(t, b.Processed)
		}
	}
}

func TestIngestCatalog_NothingPending(t *testing.T) {
	svc, _ := newService(t, newCountingEmbedder(), 0)
	results, err := svc.IngestCatalog(context.Background(), catalog.New(), testExtractor(), IngestOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
