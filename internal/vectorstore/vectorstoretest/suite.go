// Package vectorstoretest holds behaviour checks shared by every Storage
// implementation.
package vectorstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

// Factory returns a fresh, uninitialized store.
type Factory func(t *testing.T) vectorstore.Storage

const dim = 3

func passage(book string, i int, text string) domain.Passage {
	return domain.Passage{Content: text, BookTitle: book, SourceID: book + ".epub", ChunkIndex: i}
}

// fixture loads three books. The Mistborn passages point straight at the
// probe vector so they would win any unfiltered search.
func fixture(t *testing.T, s vectorstore.Storage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, dim))
	passages := []domain.Passage{
		passage("Elantris", 0, "Raoden awoke in Elantris."),
		passage("Elantris", 1, "Sarene arrived in Kae."),
		passage("Warbreaker", 0, "Siri rode to T'Telir."),
		passage("Warbreaker", 1, "Vivenna followed her sister."),
		passage("Mistborn", 0, "Kelsier survived the Pits."),
		passage("Mistborn", 1, "Vin burned pewter."),
	}
	vectors := [][]float32{
		{0.6, 0.8, 0},
		{0.1, 0.9, 0.1},
		{0.7, 0.7, 0},
		{0, 1, 0},
		{1, 0, 0},
		{0.99, 0.1, 0},
	}
	require.NoError(t, s.Insert(ctx, passages, vectors))
}

var probe = []float32{1, 0, 0}

// Run executes the shared checks against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SearchBeforeInitIsUnavailable", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Search(context.Background(), probe, vectorstore.OnlyBooks("Elantris"), 3)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})

	t.Run("InitIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		require.NoError(t, s.Init(context.Background(), dim))
		res, err := s.Search(context.Background(), probe, vectorstore.AllBooks(), 10)
		require.NoError(t, err)
		assert.Len(t, res, 6)
	})

	t.Run("FilteredSearchOnlyReturnsAllowedBooks", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		res, err := s.Search(context.Background(), probe, vectorstore.OnlyBooks("Elantris", "Warbreaker"), 3)
		require.NoError(t, err)
		require.Len(t, res, 3)
		for _, r := range res {
			assert.Contains(t, []string{"Elantris", "Warbreaker"}, r.Passage.BookTitle)
		}
		// Filtering happens before limiting: the best allowed passages come back.
		assert.Equal(t, "Siri rode to T'Telir.", res[0].Passage.Content)
		assert.Equal(t, "Raoden awoke in Elantris.", res[1].Passage.Content)
		assert.Equal(t, 1, res[0].Rank)
		assert.Equal(t, 3, res[2].Rank)
		assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
		assert.GreaterOrEqual(t, res[1].Score, res[2].Score)
	})

	t.Run("EmptyFilterReturnsNothing", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		res, err := s.Search(context.Background(), probe, vectorstore.OnlyBooks(), 5)
		require.NoError(t, err)
		assert.Empty(t, res)

		res, err = s.Search(context.Background(), probe, vectorstore.BookFilter{}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("UnknownTitleReturnsNothing", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		res, err := s.Search(context.Background(), probe, vectorstore.OnlyBooks("The Way of Kings"), 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("AllBooksRanksEverything", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		res, err := s.Search(context.Background(), probe, vectorstore.AllBooks(), 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "Mistborn", res[0].Passage.BookTitle)
		assert.Equal(t, "Mistborn", res[1].Passage.BookTitle)
	})

	t.Run("PassageFieldsRoundTrip", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		res, err := s.Search(context.Background(), []float32{0, 1, 0}, vectorstore.OnlyBooks("Warbreaker"), 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, passage("Warbreaker", 1, "Vivenna followed her sister."), res[0].Passage)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)
	})

	t.Run("InsertIsAppendOnly", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, []domain.Passage{passage("Elantris", 2, "Hrathen plotted.")}, [][]float32{{0, 0, 1}}))
		res, err := s.Search(ctx, probe, vectorstore.OnlyBooks("Elantris"), 10)
		require.NoError(t, err)
		assert.Len(t, res, 3)
	})

	t.Run("InsertRejectsMismatchedInput", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Init(context.Background(), dim))
		err := s.Insert(context.Background(), []domain.Passage{passage("Elantris", 0, "x")}, nil)
		assert.Error(t, err)
		err = s.Insert(context.Background(), []domain.Passage{passage("Elantris", 0, "x")}, [][]float32{{1, 0}})
		assert.Error(t, err)
	})

	t.Run("ClearEmptiesIndex", func(t *testing.T) {
		s := newStore(t)
		fixture(t, s)
		ctx := context.Background()
		require.NoError(t, s.Clear(ctx))
		_, err := s.Search(ctx, probe, vectorstore.AllBooks(), 5)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

		require.NoError(t, s.Init(ctx, dim))
		res, err := s.Search(ctx, probe, vectorstore.AllBooks(), 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("CountSource", func(t *testing.T) {
		s := newStore(t)
		counter, ok := s.(vectorstore.SourceCounter)
		if !ok {
			t.Skip("store does not count sources")
		}
		fixture(t, s)
		n, err := counter.CountSource(context.Background(), "Elantris.epub")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = counter.CountSource(context.Background(), "Oathbringer.epub")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
