package chunker

import (
	"bookrag/internal/domain"
)

// Split cuts text into windows of at most chunkSize runes, each starting
// chunkSize-overlap runes after the previous one. The last window may be
// shorter. Empty text yields no chunks.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := validateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	runes := []rune(text)
	step := chunkSize - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Join reverses Split: it concatenates chunks, dropping the leading overlap
// runes of every chunk after the first.
func Join(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			if overlap > len(r) {
				r = nil
			} else {
				r = r[overlap:]
			}
		}
		out = append(out, r...)
	}
	return string(out)
}

func validateWindow(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return domain.ConfigErrorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return domain.ConfigErrorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return domain.ConfigErrorf("overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return nil
}

// WindowChunker splits chapters into fixed-size overlapping character windows.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// NewWindowChunker validates the window geometry up front.
func NewWindowChunker(chunkSize, overlap int) (*WindowChunker, error) {
	if err := validateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *WindowChunker) Chunk(chapter domain.Chapter) ([]domain.Passage, error) {
	parts, err := Split(chapter.Content, c.chunkSize, c.overlap)
	if err != nil {
		return nil, err
	}
	passages := make([]domain.Passage, 0, len(parts))
	for i, p := range parts {
		passages = append(passages, domain.Passage{
			Content:    p,
			BookTitle:  chapter.BookTitle,
			SourceID:   chapter.SourceID,
			ChunkIndex: i,
		})
	}
	return passages, nil
}
