package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
)

func TestSplit_RoundTrip(t *testing.T) {
	texts := []string{
		"a",
		"Kelsier smiled.",
		strings.Repeat("The mists came at night. ", 97),
		"Vin — Elend — Sazed: ßüñçø and 漢字 mixed in with ascii",
	}
	geometries := []struct{ size, overlap int }{
		{1, 0}, {2, 1}, {5, 0}, {7, 3}, {10, 9}, {1000, 200}, {64, 16},
	}
	for _, text := range texts {
		for _, g := range geometries {
			chunks, err := Split(text, g.size, g.overlap)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			assert.Equal(t, text, Join(chunks, g.overlap), "size=%d overlap=%d", g.size, g.overlap)
			for i, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), g.size)
				if i > 0 {
					prev := []rune(chunks[i-1])
					cur := []rune(c)
					assert.Equal(t, string(prev[len(prev)-g.overlap:]), string(cur[:g.overlap]))
				}
			}
		}
	}
}

func TestSplit_EmptyInputYieldsNoChunks(t *testing.T) {
	chunks, err := Split("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_FinalChunkMayBeShorter(t *testing.T) {
	chunks, err := Split("abcdefghij", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)

	chunks, err = Split("abcdefgh", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "gh"}, chunks)
}

func TestSplit_InvalidGeometry(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{5, 5}, {5, 6}, {0, 0}, {-1, 0}, {5, -1}, {1, 1},
	}
	for _, c := range cases {
		chunks, err := Split("some text to split", c.size, c.overlap)
		assert.ErrorIs(t, err, domain.ErrConfig, "size=%d overlap=%d", c.size, c.overlap)
		assert.Nil(t, chunks)
	}
}

func TestWindowChunker_TagsPassages(t *testing.T) {
	c, err := NewWindowChunker(4, 1)
	require.NoError(t, err)

	passages, err := c.Chunk(domain.Chapter{
		Content:   "abcdefghij",
		SourceID:  "elantris.epub",
		BookTitle: "Elantris",
	})
	require.NoError(t, err)
	require.Len(t, passages, 3)
	for i, p := range passages {
		assert.Equal(t, i, p.ChunkIndex)
		assert.Equal(t, "Elantris", p.BookTitle)
		assert.Equal(t, "elantris.epub", p.SourceID)
	}
}

func TestNewWindowChunker_RejectsOverlap(t *testing.T) {
	c, err := NewWindowChunker(100, 100)
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Nil(t, c)
}

func TestSentenceChunker_Overlap(t *testing.T) {
	c, err := NewSentenceChunker(2, 1)
	require.NoError(t, err)

	passages, err := c.Chunk(domain.Chapter{
		Content:   "One. Two. Three. Four.",
		BookTitle: "Warbreaker",
		SourceID:  "warbreaker.epub",
	})
	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, "One. Two.", passages[0].Content)
	assert.Equal(t, "Two. Three.", passages[1].Content)
	assert.Equal(t, "Three. Four.", passages[2].Content)
	assert.Equal(t, 2, passages[2].ChunkIndex)
}

func TestSentenceChunker_WhitespaceOnly(t *testing.T) {
	c, err := NewSentenceChunker(3, 1)
	require.NoError(t, err)
	passages, err := c.Chunk(domain.Chapter{Content: "  \n\t "})
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestNewSentenceChunker_RejectsOverlap(t *testing.T) {
	_, err := NewSentenceChunker(2, 2)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
