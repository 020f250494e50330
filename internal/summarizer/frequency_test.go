package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two!", "Three?", "and a tail"}, Sentences("One. Two!  Three? and a tail"))
	assert.Equal(t, []string{"No punctuation here"}, Sentences("No punctuation here"))
	assert.Empty(t, Sentences("   "))
	assert.Equal(t, []string{`He said "go."`, "Then left."}, Sentences(`He said "go." Then left.`))
}

func TestSummarize_KeepsOriginalOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Raoden explored Elantris. The weather was mild. Raoden found Galladon in Elantris. Birds sang."
	got := s.Summarize(text, 2)
	assert.Equal(t, "Raoden explored Elantris. Raoden found Galladon in Elantris.", got)
}

func TestFocused_PrefersQueryWords(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Siri traveled to Hallandren. Siri met the God King. Lightsong was a god. Siri feared the priests."
	got := s.Focused(text, "Who is Lightsong?", 1)
	assert.Equal(t, "Lightsong was a god.", got)
}

func TestSummarize_Degenerate(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Equal(t, "", s.Summarize("  ", 3))
	assert.Equal(t, "Just one.", s.Summarize("Just one.", 0))
}
