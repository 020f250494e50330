package chunker

import (
	"regexp"
	"strings"

	"bookrag/internal/domain"
)

// SentenceChunker splits chapter text into sentence-based passages with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		return nil, domain.ConfigErrorf("overlap of %d sentences must be smaller than %d sentences per chunk", overlapSentences, sentencesPerChunk)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}, nil
}

func (c *SentenceChunker) Chunk(chapter domain.Chapter) ([]domain.Passage, error) {
	sentences := c.splitter.FindAllString(chapter.Content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(chapter.Content)
		if trimmed == "" {
			return nil, nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var passages []domain.Passage
	i := 0
	idx := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		passages = append(passages, domain.Passage{
			Content:    strings.Join(sentences[i:end], " "),
			BookTitle:  chapter.BookTitle,
			SourceID:   chapter.SourceID,
			ChunkIndex: idx,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return passages, nil
}
