package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookrag/internal/domain"
	"bookrag/internal/session"
	"bookrag/internal/summarizer"
)

// SessionPort is the TUI-facing subset of the session orchestrator.
type SessionPort interface {
	Begin(ctx context.Context) ([]string, error)
	CollectHistory(ctx context.Context, readerReply string) (domain.ReadingState, error)
	Recollect() ([]string, error)
	Ask(ctx context.Context, question string) (session.Answer, error)
	Retry(ctx context.Context) (session.Answer, error)
	Exit() error
	State() session.State
}

type beginMsg struct {
	titles []string
	err    error
}

type historyMsg struct {
	reading domain.ReadingState
	err     error
}

type answerMsg struct {
	answer session.Answer
	err    error
}

// Model is the Bubble Tea model for a reader session.
type Model struct {
	ctx       context.Context
	session   SessionPort
	title     string
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	log       []string
	status    string
	busy      bool
	ready     bool
	lastReply string
}

// New creates a TUI for sess. Stage calls run with ctx.
func New(ctx context.Context, sess SessionPort, series string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Which books have you read?"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	title := "Spoiler-free book guide"
	if s := strings.TrimSpace(series); s != "" {
		title = fmt.Sprintf("Spoiler-free guide to %s", s)
	}
	return Model{
		ctx:      ctx,
		session:  sess,
		title:    title,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   "Starting session...",
		busy:     true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.begin())
}

func (m Model) begin() tea.Cmd {
	return func() tea.Msg {
		titles, err := m.session.Begin(m.ctx)
		return beginMsg{titles: titles, err: err}
	}
}

func (m Model) collect(reply string) tea.Cmd {
	return func() tea.Msg {
		rs, err := m.session.CollectHistory(m.ctx, reply)
		return historyMsg{reading: rs, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		a, err := m.session.Ask(m.ctx, question)
		return answerMsg{answer: a, err: err}
	}
}

func (m Model) retry() tea.Cmd {
	return func() tea.Msg {
		a, err := m.session.Retry(m.ctx)
		return answerMsg{answer: a, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, lh := logBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - lh
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, vh)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case beginMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.showTitles(msg.titles)
		return m, nil
	case historyMsg:
		m.busy = false
		m.onHistory(msg)
		return m, nil
	case answerMsg:
		m.busy = false
		m.onAnswer(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			_ = m.session.Exit()
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if isExit(text) {
		_ = m.session.Exit()
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	m.input.SetValue("")

	switch m.session.State() {
	case session.StateCollectingHistory:
		if text == "/retry" {
			text = m.lastReply
		}
		if text == "" {
			m.status = "Tell me which books you have read."
			return m, nil
		}
		m.lastReply = text
		m.append(youStyle.Render("You: ") + text)
		return m.start("Reading your history...", m.collect(text))
	case session.StateReady, session.StateResearching, session.StateResponding:
		switch text {
		case "/retry":
			if m.session.State() == session.StateReady {
				m.status = "Nothing to retry."
				return m, nil
			}
			return m.start("Retrying...", m.retry())
		case "/history":
			titles, err := m.session.Recollect()
			if err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.showTitles(titles)
			return m, nil
		case "":
			m.status = "Please enter a valid question!"
			return m, nil
		}
		m.append(youStyle.Render("You: ") + text)
		return m.start("Researching...", m.ask(text))
	default:
		m.status = fmt.Sprintf("Session is %s.", m.session.State())
		return m, nil
	}
}

func (m Model) start(status string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = status
	m.refresh()
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m *Model) showTitles(titles []string) {
	if len(titles) == 0 {
		m.append("No books were found in the catalog.")
	} else {
		m.append("Available books:\n  " + strings.Join(titles, "\n  "))
	}
	m.append("Which of these books have you read?")
	m.input.Placeholder = "Which books have you read?"
	m.status = "Answer in your own words, e.g. \"Elantris and Warbreaker\"."
	m.refresh()
}

func (m *Model) onHistory(msg historyMsg) {
	if msg.err != nil {
		m.status = "Error: " + msg.err.Error() + " (press Enter with /retry to send again)"
		m.refresh()
		return
	}
	if msg.reading.Empty() {
		m.append(noteStyle.Render("No titles recognised. Type /history to try again; until then I can only answer that I found nothing."))
	} else {
		m.append(noteStyle.Render("You have read: " + strings.Join(msg.reading.Titles, ", ")))
	}
	m.append("What would you like to know?")
	m.input.Placeholder = "Ask a question, /history, /retry or /exit"
	m.status = "Ready."
	m.refresh()
}

func (m *Model) onAnswer(msg answerMsg) {
	if msg.err != nil {
		m.status = failureStatus(msg.err)
		m.refresh()
		return
	}
	a := msg.answer
	m.append(answerStyle.Render("Guide: ") + highlightBestSentence(a.Text, a.Question))
	if src := sourceLine(a.Passages); src != "" {
		m.append(noteStyle.Render(src))
	}
	m.status = "Ready."
	m.refresh()
}

func failureStatus(err error) string {
	var se *session.StageError
	if errors.As(err, &se) {
		if se.Timeout {
			return fmt.Sprintf("The %s stage timed out. Type /retry or ask another question.", se.Stage)
		}
		return fmt.Sprintf("The %s stage failed: %v. Type /retry or ask another question.", se.Stage, se.Err)
	}
	if errors.Is(err, domain.ErrEmptyQuestion) {
		return "Please enter a valid question!"
	}
	return "Error: " + err.Error()
}

// sourceLine summarizes which books the passages came from, in rank order.
func sourceLine(passages []domain.SearchResult) string {
	var order []string
	counts := map[string]int{}
	for _, p := range passages {
		if counts[p.Passage.BookTitle] == 0 {
			order = append(order, p.Passage.BookTitle)
		}
		counts[p.Passage.BookTitle]++
	}
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, t := range order {
		parts[i] = fmt.Sprintf("%s (%d)", t, counts[t])
	}
	return "Sources: " + strings.Join(parts, ", ")
}

func isExit(text string) bool {
	return text == "/exit" || strings.EqualFold(text, "exit")
}

func (m *Model) append(entry string) {
	m.log = append(m.log, entry)
}

func (m *Model) refresh() {
	content := strings.Join(m.log, "\n\n")
	if m.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(m.viewport.Width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + logBoxStyle.Render(m.viewport.View()) + "\n" + inputBoxStyle.Render(m.input.View()) + "\n" + status
}

var (
	logBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	noteStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	youStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// highlightBestSentence emphasizes the answer sentence sharing the most words
// with the question. The rest of the text is left as is.
func highlightBestSentence(text, query string) string {
	sentences := summarizer.Sentences(text)
	if len(sentences) < 2 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	best, bestScore := "", 0
	for _, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = s, score
		}
	}
	if bestScore == 0 {
		return text
	}
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
