// Package sqlite keeps the passage index in a local SQLite file so it
// survives between runs. Similarity is computed in Go over the rows that
// pass the book filter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS passages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    book_title  TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content     TEXT NOT NULL,
    embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_passages_book ON passages(book_title);
CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source_id);
`

// Storage is a SQLite-backed vector store. Writers take an advisory file lock
// next to the database so two processes never write the same index.
type Storage struct {
	path string
	lock *flock.Flock
	// wmu serializes writers inside this process; the flock only guards
	// against other processes.
	wmu sync.Mutex

	mu sync.Mutex
	db *sql.DB
}

// New returns a store for the database at path. Nothing is created on disk
// until Init.
func New(path string) *Storage {
	return &Storage{path: path, lock: flock.New(path + ".lock")}
}

func (s *Storage) Path() string { return s.path }

// conn returns the open database. With create false a missing file yields
// domain.ErrIndexUnavailable instead of an empty new database.
func (s *Storage) conn(create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if !create {
		if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrIndexUnavailable
		}
	} else if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure index directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *Storage) withWriteLock(ctx context.Context, fn func() error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	ok, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	if !ok {
		return fmt.Errorf("index %s is locked by another process", s.path)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func dimension(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dimension: %w", err)
	}
	return strconv.Atoi(raw)
}

func (s *Storage) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	db, err := s.conn(true)
	if err != nil {
		return err
	}
	return s.withWriteLock(ctx, func() error {
		current, err := dimension(ctx, db)
		if err != nil {
			return err
		}
		if current == dim {
			return nil
		}
		if current != 0 {
			var n int
			if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
				return fmt.Errorf("count passages: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("index holds %d-dimensional vectors, cannot switch to %d", current, dim)
			}
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES ('dimension', ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dim))
		if err != nil {
			return fmt.Errorf("store dimension: %w", err)
		}
		return nil
	})
}

func (s *Storage) Insert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return errors.New("passages and vectors length mismatch")
	}
	db, err := s.conn(false)
	if err != nil {
		return err
	}
	return s.withWriteLock(ctx, func() error {
		dim, err := dimension(ctx, db)
		if err != nil {
			return err
		}
		if dim == 0 {
			return domain.ErrIndexUnavailable
		}
		for _, v := range vectors {
			if len(v) != dim {
				return errors.New("vector dimension mismatch")
			}
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO passages (book_title, source_id, chunk_index, content, embedding) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, p := range passages {
			if _, err := stmt.ExecContext(ctx, p.BookTitle, p.SourceID, p.ChunkIndex, p.Content, encodeVector(vectors[i])); err != nil {
				return fmt.Errorf("insert passage: %w", err)
			}
		}
		return tx.Commit()
	})
}

func (s *Storage) Search(ctx context.Context, vector []float32, filter vectorstore.BookFilter, k int) ([]domain.SearchResult, error) {
	db, err := s.conn(false)
	if err != nil {
		return nil, err
	}
	dim, err := dimension(ctx, db)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, domain.ErrIndexUnavailable
	}
	if len(vector) != dim {
		return nil, errors.New("vector dimension mismatch")
	}
	if filter.None() {
		return nil, nil
	}

	query := `SELECT book_title, source_id, chunk_index, content, embedding FROM passages`
	var args []any
	if !filter.All() {
		titles := filter.Titles()
		query += ` WHERE book_title IN (` + strings.TrimSuffix(strings.Repeat("?,", len(titles)), ",") + `)`
		for _, t := range titles {
			args = append(args, t)
		}
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var p domain.Passage
		var blob []byte
		if err := rows.Scan(&p.BookTitle, &p.SourceID, &p.ChunkIndex, &p.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		results = append(results, domain.SearchResult{Passage: p, Score: vectorstore.Cosine(decodeVector(blob), vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.TopK(results, k), nil
}

func (s *Storage) CountSource(ctx context.Context, sourceID string) (int, error) {
	db, err := s.conn(false)
	if errors.Is(err, domain.ErrIndexUnavailable) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages WHERE source_id = ?`, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count source: %w", err)
	}
	return n, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	db, err := s.conn(false)
	if errors.Is(err, domain.ErrIndexUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.withWriteLock(ctx, func() error {
		for _, q := range []string{`DELETE FROM passages`, `DELETE FROM index_meta`} {
			if _, err := db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}
		}
		return nil
	})
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
