package extractor

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// TextExtractor handles plain text books. Lines such as "Chapter 3" or
// "Prologue" start a new section; a file without them is one section.
type TextExtractor struct{}

var chapterLineRe = regexp.MustCompile(`(?i)^\s*(chapter\s+\S+|prologue|epilogue|part\s+\S+)\b.{0,80}$`)

// Title is always empty: plain text carries no metadata.
func (e *TextExtractor) Title(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return "", nil
}

func (e *TextExtractor) Sections(path string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var sections []Section
	current := Section{}
	var body strings.Builder
	flush := func() {
		current.Text = strings.TrimSpace(body.String())
		if current.Text != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		if chapterLineRe.MatchString(line) {
			flush()
			current = Section{Name: strings.TrimSpace(line)}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return sections, nil
}
