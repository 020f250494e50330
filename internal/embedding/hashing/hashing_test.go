package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbed_ShapeAndNorm(t *testing.T) {
	e := NewEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"Raoden walked through Elantris.", "the of and"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 64)
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-5)

	for _, v := range vecs[1] {
		assert.Zero(t, v)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	e := NewEmbedder(128)
	a, err := e.Embed(context.Background(), []string{"Siri and Vivenna"})
	require.NoError(t, err)
	b, err := NewEmbedder(128).Embed(context.Background(), []string{"Siri and Vivenna"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbed_RelatedTextScoresHigher(t *testing.T) {
	e := NewEmbedder(DefaultDimension)
	vecs, err := e.Embed(context.Background(), []string{
		"Who is Raoden?",
		"Raoden, prince of Arelon, was taken by the Shaod.",
		"Lightsong the Bold lounged in his palace.",
	})
	require.NoError(t, err)
	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.False(t, math.IsNaN(related))
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbedder_DefaultDimension(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, "hashing", e.Name())
}
