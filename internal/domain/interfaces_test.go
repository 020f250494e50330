package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReadingState_TrimsAndDeduplicates(t *testing.T) {
	s := NewReadingState(" Elantris", "Warbreaker ", "", "Elantris", "  ")
	assert.Equal(t, []string{"Elantris", "Warbreaker"}, s.Titles)
	assert.False(t, s.Empty())
	assert.True(t, s.Has("Warbreaker"))
	assert.False(t, s.Has("warbreaker"))
}

func TestReadingState_CloneIsIndependent(t *testing.T) {
	s := NewReadingState("Elantris")
	c := s.Clone()
	c.Titles[0] = "Mistborn"
	assert.Equal(t, "Elantris", s.Titles[0])
}

func TestStateError_MatchesSentinel(t *testing.T) {
	var err error = &StateError{Op: "ask", State: "Init"}
	assert.True(t, errors.Is(err, ErrState))
	assert.Contains(t, err.Error(), "ask not allowed in state Init")
}

func TestExtractionError_Unwraps(t *testing.T) {
	inner := errors.New("bad zip")
	err := &ExtractionError{Path: "x.epub", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "extract x.epub: bad zip", err.Error())
}

func TestConfigErrorf(t *testing.T) {
	err := ConfigErrorf("overlap %d >= chunk size %d", 5, 5)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "overlap 5 >= chunk size 5")
}
