package domain

import "strings"

// BookRecord is a catalog entry for one book file.
type BookRecord struct {
	Title     string
	SourceID  string
	Path      string
	Processed bool
}

// Chapter is a named section of narrative text extracted from a book.
type Chapter struct {
	Name      string
	Content   string
	SourceID  string
	BookTitle string
}

// Passage is a fixed-size piece of a chapter used for indexing.
// ChunkIndex orders passages within a chapter only.
type Passage struct {
	Content    string
	BookTitle  string
	SourceID   string
	ChunkIndex int
}

// SearchResult represents a matching passage with a relevance score.
// Rank is 1-based.
type SearchResult struct {
	Passage Passage
	Score   float64
	Rank    int
}

// ReadingState records which titles a reader has finished.
type ReadingState struct {
	Titles []string
}

// NewReadingState builds a state from titles, dropping blanks and duplicates
// while keeping first-seen order.
func NewReadingState(titles ...string) ReadingState {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return ReadingState{Titles: out}
}

// Empty reports whether no titles have been read.
func (s ReadingState) Empty() bool { return len(s.Titles) == 0 }

// Has reports whether title is part of the read set (exact match).
func (s ReadingState) Has(title string) bool {
	for _, t := range s.Titles {
		if t == title {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no memory with s.
func (s ReadingState) Clone() ReadingState {
	out := make([]string, len(s.Titles))
	copy(out, s.Titles)
	return ReadingState{Titles: out}
}

// Chunker splits chapters into passages suitable for retrieval indexing.
type Chunker interface {
	Chunk(chapter Chapter) ([]Passage, error)
}

// HistoryContext is the structured input of the history collection stage.
type HistoryContext struct {
	Series          string
	AvailableTitles []string
	ReaderReply     string
}

// ResearchContext is the structured input of the research stage.
type ResearchContext struct {
	Series     string
	Question   string
	ReadTitles []string
	Passages   []SearchResult
}

// ResponseContext is the structured input of the final answer stage.
type ResponseContext struct {
	Series     string
	Question   string
	Research   string
	ReadTitles []string
}
