// Package extractor turns book files into ordered, markup-free sections.
package extractor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"bookrag/internal/domain"
)

// Section is one named block of narrative text, usually a chapter.
type Section struct {
	Name string
	Text string
}

// Extractor reads metadata and text sections from a book file.
type Extractor interface {
	// Title returns the title stored in the file, or "" when there is none.
	Title(path string) (string, error)
	// Sections returns narrative sections in reading order.
	Sections(path string) ([]Section, error)
}

// SupportedExtensions lists file extensions this package can handle.
var SupportedExtensions = map[string]bool{
	".epub":     true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return &EPUBExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".txt":
		return &TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
}

// IsSupported checks if a file extension is supported.
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Auto dispatches to the extractor matching each file's extension.
type Auto struct{}

func (Auto) Title(path string) (string, error) {
	ex, err := ForFile(path)
	if err != nil {
		return "", err
	}
	return ex.Title(path)
}

func (Auto) Sections(path string) ([]Section, error) {
	ex, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	return ex.Sections(path)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds every whitespace run into a single space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Chapters converts sections into chapters of the given book, dropping
// sections that are empty after whitespace collapsing.
func Chapters(book domain.BookRecord, sections []Section) []domain.Chapter {
	chapters := make([]domain.Chapter, 0, len(sections))
	for _, s := range sections {
		text := CollapseWhitespace(s.Text)
		if text == "" {
			continue
		}
		chapters = append(chapters, domain.Chapter{
			Name:      s.Name,
			Content:   text,
			SourceID:  book.SourceID,
			BookTitle: book.Title,
		})
	}
	return chapters
}

// Load extracts the chapters of a catalog record. Failures are reported as
// *domain.ExtractionError.
func Load(ex Extractor, book domain.BookRecord) ([]domain.Chapter, error) {
	sections, err := ex.Sections(book.Path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: book.Path, Err: err}
	}
	return Chapters(book, sections), nil
}

func isFrontMatter(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "cover") || strings.Contains(lower, "toc")
}
