package session

import (
	"fmt"
	"strings"

	"bookrag/internal/completion"
	"bookrag/internal/domain"
)

func seriesName(series string) string {
	if s := strings.TrimSpace(series); s != "" {
		return s
	}
	return "this book series"
}

// HistoryRequest builds the history_collector stage call.
func HistoryRequest(c domain.HistoryContext) completion.Request {
	series := seriesName(c.Series)
	var b strings.Builder
	b.WriteString("Available books:\n")
	for _, t := range c.AvailableTitles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	fmt.Fprintf(&b, "\nThe reader said: %q\n\n", c.ReaderReply)
	b.WriteString("Reply with only the titles from the list that the reader has read, written exactly as in the list and separated by commas. ")
	b.WriteString("If none of them match, reply with an empty line.")
	return completion.Request{
		Role: completion.RoleHistoryCollector,
		System: fmt.Sprintf("You are an expert on %s. You find out which books the reader has already read so that nothing from an unread book is spoiled.",
			series),
		Prompt:  b.String(),
		Context: c,
	}
}

// ResearchRequest builds the researcher stage call from the filtered passages.
func ResearchRequest(c domain.ResearchContext) completion.Request {
	series := seriesName(c.Series)
	read := strings.Join(c.ReadTitles, ", ")
	var b strings.Builder
	fmt.Fprintf(&b, "Research information to answer: %q\n", c.Question)
	fmt.Fprintf(&b, "Only use information from these books: %s\n\n", read)
	b.WriteString("Search results:\n")
	b.WriteString(FormatPassages(c.Passages))
	b.WriteString("\nSummarize the facts that help answer the question and name the book each fact comes from. ")
	fmt.Fprintf(&b, "If the search results say nothing relevant, reply exactly: %s", completion.NoInformation)
	return completion.Request{
		Role:    completion.RoleResearcher,
		System:  fmt.Sprintf("You are a scholar of %s. You only provide information from books the reader has read.", series),
		Prompt:  b.String(),
		Context: c,
	}
}

// ResponseRequest builds the responder stage call from the research summary.
func ResponseRequest(c domain.ResponseContext) completion.Request {
	series := seriesName(c.Series)
	var b strings.Builder
	fmt.Fprintf(&b, "Craft a response to: %q\n", c.Question)
	fmt.Fprintf(&b, "The reader has read: %s\n\n", strings.Join(c.ReadTitles, ", "))
	fmt.Fprintf(&b, "Research results:\n%s\n\n", strings.TrimSpace(c.Research))
	b.WriteString("Answer only from the research results. If they do not contain the answer, say so instead of guessing.")
	return completion.Request{
		Role: completion.RoleResponder,
		System: fmt.Sprintf("You help readers understand %s without spoiling events from books they have not read.",
			series),
		Prompt:  b.String(),
		Context: c,
	}
}

// FormatPassages renders retrieved passages as numbered sources.
func FormatPassages(results []domain.SearchResult) string {
	if len(results) == 0 {
		return completion.NoInformation + "\n"
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Source %d (from %s):\n%s\n\n", i+1, r.Passage.BookTitle, strings.TrimSpace(r.Passage.Content))
	}
	return b.String()
}
