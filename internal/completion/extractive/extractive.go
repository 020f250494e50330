// Package extractive is an offline completion provider. It answers stage
// requests from their structured context without a language model: titles
// are matched in the reader's reply, and research and answers are built from
// the retrieved passages with the frequency summarizer.
package extractive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"bookrag/internal/completion"
	"bookrag/internal/domain"
	"bookrag/internal/summarizer"
)

type Provider struct {
	sum          *summarizer.FrequencySummarizer
	maxSentences int
}

// New returns a provider that keeps at most maxSentences sentences per source.
func New(maxSentences int) *Provider {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Provider{sum: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

func (p *Provider) Complete(ctx context.Context, req completion.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch c := req.Context.(type) {
	case domain.HistoryContext:
		return matchTitles(c.ReaderReply, c.AvailableTitles), nil
	case domain.ResearchContext:
		return p.research(c), nil
	case domain.ResponseContext:
		return respond(c), nil
	default:
		return "", fmt.Errorf("extractive provider cannot handle %s request with context %T", req.Role, req.Context)
	}
}

// matchTitles lists the available titles mentioned in reply, comma separated,
// in the order the reader mentioned them. Longer titles win over titles they
// contain, so "Mistborn: Secret History" does not also yield "Mistborn".
func matchTitles(reply string, titles []string) string {
	fold := cases.Fold()
	text := fold.String(reply)

	type hit struct {
		title string
		pos   int
	}
	ordered := append([]string(nil), titles...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	var hits []hit
	for _, title := range ordered {
		needle := fold.String(strings.TrimSpace(title))
		if needle == "" {
			continue
		}
		if pos := indexWord(text, needle); pos >= 0 {
			hits = append(hits, hit{title: title, pos: pos})
			// Blank out the match so shorter titles inside it are not found again.
			text = text[:pos] + strings.Repeat(" ", len(needle)) + text[pos+len(needle):]
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.title
	}
	return strings.Join(names, ", ")
}

// indexWord finds needle in text where it is not glued to surrounding letters
// or digits.
func indexWord(text, needle string) int {
	from := 0
	for {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(needle)
		if boundary(text, start-1) && boundary(text, end) {
			return start
		}
		from = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80)
}

func (p *Provider) research(c domain.ResearchContext) string {
	if len(c.Passages) == 0 {
		return completion.NoInformation
	}
	var order []string
	byBook := map[string][]string{}
	for _, r := range c.Passages {
		title := r.Passage.BookTitle
		if _, seen := byBook[title]; !seen {
			order = append(order, title)
		}
		byBook[title] = append(byBook[title], r.Passage.Content)
	}
	var b strings.Builder
	for _, title := range order {
		summary := p.sum.Focused(strings.Join(byBook[title], " "), c.Question, p.maxSentences)
		if summary == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "From %s: %s", title, summary)
	}
	if b.Len() == 0 {
		return completion.NoInformation
	}
	return b.String()
}

func respond(c domain.ResponseContext) string {
	research := strings.TrimSpace(c.Research)
	if research == "" || research == completion.NoInformation {
		return "I couldn't find anything about that in the books you've read so far, so I can't answer without risking spoilers."
	}
	return fmt.Sprintf("Based on %s:\n%s", strings.Join(c.ReadTitles, ", "), research)
}
