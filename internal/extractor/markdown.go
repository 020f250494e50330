package extractor

import (
	"bytes"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor handles Markdown manuscripts. A level-1 heading names the
// book; every level-1 or level-2 heading starts a new section.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Title(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			return strings.TrimSpace(string(h.Text(src))), nil
		}
	}
	return "", nil
}

func (e *MarkdownExtractor) Sections(path string) ([]Section, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sections []Section
	current := Section{}
	var body bytes.Buffer
	flush := func() {
		current.Text = strings.TrimSpace(body.String())
		if current.Text != "" && !isContentsHeading(current.Name) {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= 2 {
			flush()
			current = Section{Name: strings.TrimSpace(string(h.Text(src)))}
			continue
		}
		if t := blockText(n, src); t != "" {
			if body.Len() > 0 {
				body.WriteString("\n\n")
			}
			body.WriteString(t)
		}
	}
	flush()
	return sections, nil
}

// blockText gets the text content of a goldmark AST node.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		if lines.Len() > 0 {
			return strings.TrimSpace(buf.String())
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(blockText(c, src))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String())
}

func isContentsHeading(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cover", "contents", "table of contents", "toc":
		return true
	}
	return false
}
