// Package vectorstore defines the passage index contract and the book filter
// every search must carry.
package vectorstore

import (
	"context"

	"bookrag/internal/domain"
)

// Storage persists passage vectors and supports filtered similarity search.
//
// Search must drop passages rejected by the filter before ranking and
// limiting, so a result list never contains a book outside the filter and
// always holds the best k allowed passages. A store that has never been
// initialized, or whose backing index is missing, returns
// domain.ErrIndexUnavailable.
type Storage interface {
	// Init prepares the index for vectors of the given dimension. Calling it
	// again with the same dimension is a no-op.
	Init(ctx context.Context, dimension int) error
	// Insert appends passages; vectors[i] belongs to passages[i].
	Insert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, filter BookFilter, k int) ([]domain.SearchResult, error)
	// Clear removes every passage and forgets the dimension.
	Clear(ctx context.Context) error
	Close() error
}

// SourceCounter is implemented by persistent stores that can tell how many
// passages of a source file they already hold.
type SourceCounter interface {
	CountSource(ctx context.Context, sourceID string) (int, error)
}

// BookFilter restricts a search to a set of book titles. The zero value
// allows no book at all.
type BookFilter struct {
	all    bool
	titles []string
	set    map[string]struct{}
}

// OnlyBooks allows exactly the given titles (exact, case-sensitive match
// against Passage.BookTitle). With no titles nothing is allowed.
func OnlyBooks(titles ...string) BookFilter {
	f := BookFilter{set: make(map[string]struct{}, len(titles))}
	for _, t := range titles {
		if _, dup := f.set[t]; dup {
			continue
		}
		f.set[t] = struct{}{}
		f.titles = append(f.titles, t)
	}
	return f
}

// AllBooks disables title filtering. Only diagnostic tooling should use it.
func AllBooks() BookFilter { return BookFilter{all: true} }

func (f BookFilter) All() bool { return f.all }

// Titles returns the allowed titles; it is nil for AllBooks.
func (f BookFilter) Titles() []string {
	if f.all {
		return nil
	}
	return append([]string(nil), f.titles...)
}

// None reports whether the filter rejects every passage.
func (f BookFilter) None() bool { return !f.all && len(f.titles) == 0 }

func (f BookFilter) Allows(title string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[title]
	return ok
}
