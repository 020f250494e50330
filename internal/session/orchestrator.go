// Package session runs the reader conversation: it collects which books the
// reader has finished, then answers questions in two stages (research over
// passages from those books only, then a response built from the research).
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookrag/internal/completion"
	"bookrag/internal/domain"
)

const (
	defaultTopK         = 5
	defaultStageTimeout = 2 * time.Minute
)

type State int

const (
	StateInit State = iota
	StateCollectingHistory
	StateReady
	StateResearching
	StateResponding
	StateExit
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateCollectingHistory:
		return "CollectingHistory"
	case StateReady:
		return "Ready"
	case StateResearching:
		return "Researching"
	case StateResponding:
		return "Responding"
	case StateExit:
		return "Exit"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Catalog is the part of the book catalog the session needs.
type Catalog interface {
	ListTitles() []string
	ResolveTitle(title string) (domain.BookRecord, bool)
}

// Searcher retrieves passages restricted to allowedTitles. There is no
// unrestricted variant here.
type Searcher interface {
	Search(ctx context.Context, query string, allowedTitles []string, k int) ([]domain.SearchResult, error)
}

// StageError reports a failed or timed out stage. The session stays in the
// failing stage and can be retried.
type StageError struct {
	Stage   completion.Role
	Err     error
	Timeout bool
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s stage timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Answer is the outcome of one question.
type Answer struct {
	Question   string
	Text       string
	Research   string
	Passages   []domain.SearchResult
	ReadTitles []string
}

type Options struct {
	Series       string
	TopK         int
	StageTimeout time.Duration
	Logger       *zap.Logger
}

// turn holds the question in flight and whatever its finished stages produced.
type turn struct {
	question string
	passages []domain.SearchResult
	research string
}

// Orchestrator owns one reader session. Operations are serialized; an
// operation attempted while a stage is running fails with a StateError.
type Orchestrator struct {
	catalog Catalog
	search  Searcher
	llm     completion.Service
	series  string
	topK    int
	timeout time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	state     State
	busy      bool
	reading   domain.ReadingState
	collected bool
	turn      turn
}

func New(cat Catalog, search Searcher, llm completion.Service, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		catalog: cat,
		search:  search,
		llm:     llm,
		series:  opts.Series,
		topK:    opts.TopK,
		timeout: opts.StageTimeout,
		log:     log.With(zap.String("session_id", uuid.NewString())),
		state:   StateInit,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reading returns a copy of the collected reading state. The flag is false
// until history has been collected once.
func (o *Orchestrator) Reading() (domain.ReadingState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reading.Clone(), o.collected
}

// Begin starts the session and returns the titles to present to the reader.
func (o *Orchestrator) Begin(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkLocked("begin", StateInit); err != nil {
		return nil, err
	}
	o.state = StateCollectingHistory
	titles := o.catalog.ListTitles()
	o.log.Info("session started", zap.Int("books", len(titles)))
	return titles, nil
}

// Recollect returns a ready session to history collection. The previous
// reading state stays in effect until a new one is collected.
func (o *Orchestrator) Recollect() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkLocked("recollect", StateReady); err != nil {
		return nil, err
	}
	o.state = StateCollectingHistory
	return o.catalog.ListTitles(), nil
}

// CollectHistory turns the reader's free-form reply into a reading state.
// An empty result is still a collected state.
func (o *Orchestrator) CollectHistory(ctx context.Context, readerReply string) (domain.ReadingState, error) {
	o.mu.Lock()
	if err := o.checkLocked("collect history", StateCollectingHistory); err != nil {
		o.mu.Unlock()
		return domain.ReadingState{}, err
	}
	o.busy = true
	titles := o.catalog.ListTitles()
	o.mu.Unlock()

	raw, err := o.call(ctx, HistoryRequest(domain.HistoryContext{
		Series:          o.series,
		AvailableTitles: titles,
		ReaderReply:     readerReply,
	}))

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if err != nil {
		return domain.ReadingState{}, err
	}
	rs := o.parseHistory(raw)
	o.reading = rs
	o.collected = true
	o.state = StateReady
	o.log.Info("reading history collected", zap.Strings("titles", rs.Titles))
	return rs.Clone(), nil
}

// parseHistory splits a comma-delimited list and maps entries onto catalog
// titles where possible.
func (o *Orchestrator) parseHistory(raw string) domain.ReadingState {
	var titles []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if rec, ok := o.catalog.ResolveTitle(entry); ok {
			titles = append(titles, rec.Title)
			continue
		}
		// Models like to wrap titles in quotes or end the list with a period.
		if trimmed := strings.TrimSpace(strings.Trim(entry, "\"'`*.")); trimmed != "" {
			if rec, ok := o.catalog.ResolveTitle(trimmed); ok {
				titles = append(titles, rec.Title)
				continue
			}
		}
		o.log.Debug("unrecognised title in history", zap.String("entry", entry))
		titles = append(titles, entry)
	}
	return domain.NewReadingState(titles...)
}

// Ask answers a question using only the books in the reading state. Asking
// while a previous turn is stalled abandons that turn.
func (o *Orchestrator) Ask(ctx context.Context, question string) (Answer, error) {
	o.mu.Lock()
	if !o.collected {
		o.mu.Unlock()
		return Answer{}, &domain.StateError{Op: "ask", State: o.state.String(), Reason: "reading history not collected"}
	}
	if err := o.checkLocked("ask", StateReady, StateResearching, StateResponding); err != nil {
		o.mu.Unlock()
		return Answer{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		o.mu.Unlock()
		return Answer{}, domain.ErrEmptyQuestion
	}
	if o.state != StateReady {
		o.log.Info("abandoning stalled turn", zap.String("state", o.state.String()), zap.String("question", o.turn.question))
	}
	o.turn = turn{question: question}
	o.state = StateResearching
	o.busy = true
	o.mu.Unlock()

	return o.run(ctx)
}

// Retry re-runs the stage the current turn stalled in. A stalled response
// reuses the research that already succeeded.
func (o *Orchestrator) Retry(ctx context.Context) (Answer, error) {
	o.mu.Lock()
	if err := o.checkLocked("retry", StateResearching, StateResponding); err != nil {
		o.mu.Unlock()
		return Answer{}, err
	}
	o.busy = true
	o.mu.Unlock()

	return o.run(ctx)
}

// Exit ends the session, abandoning a stalled stage if there is one.
func (o *Orchestrator) Exit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkLocked("exit", StateCollectingHistory, StateReady, StateResearching, StateResponding); err != nil {
		return err
	}
	o.state = StateExit
	o.turn = turn{}
	o.log.Info("session ended")
	return nil
}

// run executes the remaining stages of the current turn. The caller has set
// busy; run clears it.
func (o *Orchestrator) run(ctx context.Context) (Answer, error) {
	o.mu.Lock()
	t := o.turn
	state := o.state
	read := o.reading.Clone()
	o.mu.Unlock()

	if state == StateResearching {
		passages, research, err := o.research(ctx, t.question, read)
		if err != nil {
			o.finish(nil)
			return Answer{}, err
		}
		t.passages, t.research = passages, research
		o.finish(func() {
			o.turn = t
			o.state = StateResponding
			o.busy = true
		})
	}

	text, err := o.call(ctx, ResponseRequest(domain.ResponseContext{
		Series:     o.series,
		Question:   t.question,
		Research:   t.research,
		ReadTitles: read.Titles,
	}))
	if err != nil {
		o.finish(nil)
		return Answer{}, err
	}
	o.finish(func() {
		o.turn = turn{}
		o.state = StateReady
	})
	return Answer{
		Question:   t.question,
		Text:       strings.TrimSpace(text),
		Research:   t.research,
		Passages:   t.passages,
		ReadTitles: read.Titles,
	}, nil
}

func (o *Orchestrator) finish(update func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if update != nil {
		update()
	}
}

func (o *Orchestrator) research(ctx context.Context, question string, read domain.ReadingState) ([]domain.SearchResult, string, error) {
	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	passages, err := o.search.Search(sctx, question, read.Titles, o.topK)
	if err != nil {
		return nil, "", o.stageError(sctx, completion.RoleResearcher, fmt.Errorf("search: %w", err))
	}
	o.log.Debug("retrieved passages", zap.Int("count", len(passages)), zap.Strings("books", read.Titles))

	research, err := o.call(sctx, ResearchRequest(domain.ResearchContext{
		Series:     o.series,
		Question:   question,
		ReadTitles: read.Titles,
		Passages:   passages,
	}))
	if err != nil {
		return nil, "", err
	}
	return passages, strings.TrimSpace(research), nil
}

// call runs one completion under the stage timeout.
func (o *Orchestrator) call(ctx context.Context, req completion.Request) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := o.llm.Complete(sctx, req)
	if err != nil {
		return "", o.stageError(sctx, req.Role, err)
	}
	o.log.Debug("stage finished", zap.String("stage", string(req.Role)), zap.Duration("took", time.Since(start)))
	return out, nil
}

func (o *Orchestrator) stageError(ctx context.Context, stage completion.Role, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	o.log.Warn("stage failed", zap.String("stage", string(stage)), zap.Bool("timeout", timeout), zap.Error(err))
	return &StageError{Stage: stage, Err: err, Timeout: timeout}
}

// checkLocked verifies that no stage is running and the state is one of allowed.
func (o *Orchestrator) checkLocked(op string, allowed ...State) error {
	if o.busy {
		return &domain.StateError{Op: op, State: o.state.String(), Reason: "a stage is still running"}
	}
	for _, s := range allowed {
		if o.state == s {
			return nil
		}
	}
	return &domain.StateError{Op: op, State: o.state.String()}
}
