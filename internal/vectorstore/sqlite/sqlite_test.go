package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
	"bookrag/internal/vectorstore/vectorstoretest"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "index", "passages.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage(t *testing.T) {
	vectorstoretest.Run(t, func(t *testing.T) vectorstore.Storage { return newTestStore(t) })
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passages.db")
	ctx := context.Background()

	s := New(path)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Insert(ctx,
		[]domain.Passage{{Content: "Hoid juggled.", BookTitle: "Warbreaker", SourceID: "warbreaker.epub", ChunkIndex: 4}},
		[][]float32{{0.25, -1.5}},
	))
	require.NoError(t, s.Close())

	reopened := New(path)
	defer reopened.Close()
	res, err := reopened.Search(ctx, []float32{0.25, -1.5}, vectorstore.OnlyBooks("Warbreaker"), 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Hoid juggled.", res[0].Passage.Content)
	assert.Equal(t, 4, res[0].Passage.ChunkIndex)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)

	n, err := reopened.CountSource(ctx, "warbreaker.epub")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.db"))
	ctx := context.Background()

	_, err := s.Search(ctx, []float32{1}, vectorstore.AllBooks(), 3)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	n, err := s.CountSource(ctx, "x.epub")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Clear(ctx))

	err = s.Insert(ctx, []domain.Passage{{Content: "x"}}, [][]float32{{1}})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestInit_RejectsDimensionChangeWithData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Insert(ctx, []domain.Passage{{Content: "x", BookTitle: "B"}}, [][]float32{{1, 0}}))
	assert.Error(t, s.Init(ctx, 3))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.25, 3.5e-7, 42}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
