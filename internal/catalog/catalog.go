// Package catalog tracks the books available in a series and whether each has
// been ingested.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"bookrag/internal/domain"
	"bookrag/internal/extractor"
)

// Catalog is the set of known books keyed by source id (the file name).
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*domain.BookRecord
}

// New builds a catalog from already known records, preserving their order.
// Records with an empty or repeated SourceID are ignored.
func New(records ...domain.BookRecord) *Catalog {
	c := &Catalog{
		records: make(map[string]*domain.BookRecord, len(records)),
	}
	for _, r := range records {
		c.add(r)
	}
	return c
}

func (c *Catalog) add(r domain.BookRecord) bool {
	if r.SourceID == "" {
		return false
	}
	if _, dup := c.records[r.SourceID]; dup {
		return false
	}
	rec := r
	c.records[r.SourceID] = &rec
	c.order = append(c.order, r.SourceID)
	return true
}

// Load scans dir for supported book files and reads each title through ex.
// Files that fail to open are logged and skipped; files without an embedded
// title are named after their file name.
func Load(dir string, ex extractor.Extractor, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read books directory: %w", err)
	}

	c := New()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !extractor.IsSupported(name) {
			log.Debug("ignoring unsupported file", zap.String("file", name))
			continue
		}
		path := filepath.Join(dir, name)
		title, err := ex.Title(path)
		if err != nil {
			log.Warn("skipping unreadable book", zap.Error(&domain.ExtractionError{Path: path, Err: err}))
			continue
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = TitleFromFilename(name)
		}
		c.add(domain.BookRecord{Title: title, SourceID: name, Path: path})
	}
	log.Info("catalog loaded", zap.String("dir", dir), zap.Int("books", len(c.order)))
	return c, nil
}

// TitleFromFilename derives a readable title from a file name.
func TitleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// ListTitles returns book titles in discovery order.
func (c *Catalog) ListTitles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	titles := make([]string, 0, len(c.order))
	for _, id := range c.order {
		titles = append(titles, c.records[id].Title)
	}
	return titles
}

// ResolveTitle finds a book by title, ignoring case and surrounding space.
func (c *Catalog) ResolveTitle(title string) (domain.BookRecord, bool) {
	want := foldTitle(title)
	if want == "" {
		return domain.BookRecord{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		rec := c.records[id]
		if foldTitle(rec.Title) == want {
			return *rec, true
		}
	}
	return domain.BookRecord{}, false
}

// foldTitle builds a fresh Caser per call; Casers are stateful.
func foldTitle(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// MarkProcessed flags a book as ingested. It reports false for unknown ids;
// marking an already processed book is a no-op.
func (c *Catalog) MarkProcessed(sourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[sourceID]
	if !ok {
		return false
	}
	rec.Processed = true
	return true
}

func (c *Catalog) Get(sourceID string) (domain.BookRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[sourceID]
	if !ok {
		return domain.BookRecord{}, false
	}
	return *rec, true
}

// Books returns a snapshot of every record in discovery order.
func (c *Catalog) Books() []domain.BookRecord {
	return c.filter(func(domain.BookRecord) bool { return true })
}

// Pending returns the records not yet ingested.
func (c *Catalog) Pending() []domain.BookRecord {
	return c.filter(func(r domain.BookRecord) bool { return !r.Processed })
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Catalog) filter(keep func(domain.BookRecord) bool) []domain.BookRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.BookRecord, 0, len(c.order))
	for _, id := range c.order {
		if rec := *c.records[id]; keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
