package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bookrag/internal/domain"
	"bookrag/internal/extractor"
	"bookrag/internal/vectorstore"
)

// BookSource is the part of the catalog ingestion needs.
type BookSource interface {
	Pending() []domain.BookRecord
	MarkProcessed(sourceID string) bool
}

// IngestOptions controls IngestCatalog.
type IngestOptions struct {
	// Workers bounds how many books are processed at once; <= 0 means 1.
	Workers int
	// SkipIndexed marks books already present in a persistent index as
	// processed without re-ingesting them.
	SkipIndexed bool
	// Progress, when set, is called once per finished book. Calls may come
	// from several goroutines.
	Progress func(BookResult)
}

// BookResult reports what happened to one book.
type BookResult struct {
	Title    string
	SourceID string
	Passages int
	// AlreadyIndexed is set when SkipIndexed found existing passages.
	AlreadyIndexed bool
	// Err is an extraction failure; the book was skipped.
	Err error
}

// IngestCatalog extracts and indexes every pending book of src in parallel.
// A book whose file cannot be read is logged and skipped; any other failure
// stops the run, leaving books finished so far marked as processed.
func (s *RetrievalService) IngestCatalog(ctx context.Context, src BookSource, ex extractor.Extractor, opts IngestOptions) ([]BookResult, error) {
	pending := src.Pending()
	results := make([]BookResult, len(pending))
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	counter, _ := s.store.(vectorstore.SourceCounter)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, book := range pending {
		g.Go(func() error {
			res, err := s.ingestBook(gctx, src, ex, book, counter, opts.SkipIndexed)
			if err != nil {
				return err
			}
			results[i] = res
			if opts.Progress != nil {
				opts.Progress(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *RetrievalService) ingestBook(ctx context.Context, src BookSource, ex extractor.Extractor, book domain.BookRecord, counter vectorstore.SourceCounter, skipIndexed bool) (BookResult, error) {
	res := BookResult{Title: book.Title, SourceID: book.SourceID}
	log := s.log.With(zap.String("book", book.Title), zap.String("file", book.SourceID))

	if skipIndexed && counter != nil {
		n, err := counter.CountSource(ctx, book.SourceID)
		if err != nil {
			return res, fmt.Errorf("check index for %q: %w", book.Title, err)
		}
		if n > 0 {
			src.MarkProcessed(book.SourceID)
			res.Passages, res.AlreadyIndexed = n, true
			log.Info("book already indexed", zap.Int("passages", n))
			return res, nil
		}
	}

	log.Info("processing book")
	chapters, err := extractor.Load(ex, book)
	if err != nil {
		var exErr *domain.ExtractionError
		if errors.As(err, &exErr) {
			log.Warn("skipping book", zap.Error(err))
			res.Err = err
			return res, nil
		}
		return res, err
	}
	n, err := s.Ingest(ctx, book.Title, chapters)
	if err != nil {
		return res, err
	}
	src.MarkProcessed(book.SourceID)
	res.Passages = n
	log.Info("finished book", zap.Int("chapters", len(chapters)), zap.Int("passages", n))
	return res, nil
}
