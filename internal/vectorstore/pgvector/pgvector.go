// Package pgvector stores passages in Postgres with the pgvector extension and
// lets the database rank them by cosine distance.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type passageRow struct {
	ID         int64 `gorm:"primaryKey"`
	BookTitle  string
	SourceID   string
	ChunkIndex int
	Content    string
	Embedding  pgvector.Vector
}

type scoredRow struct {
	BookTitle  string
	SourceID   string
	ChunkIndex int
	Content    string
	Score      float64
}

// Storage is a Postgres-backed vector store.
type Storage struct {
	db    *gorm.DB
	table string
}

// Open connects to Postgres. The passages table is created by Init.
func Open(dsn, table string) (*Storage, error) {
	if !tableNameRe.MatchString(table) {
		return nil, domain.ConfigErrorf("pgvector: invalid table name %q", table)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Storage{db: db, table: table}, nil
}

func (s *Storage) hasTable(ctx context.Context) bool {
	return s.db.WithContext(ctx).Migrator().HasTable(s.table)
}

// dimension reads the declared size of the embedding column; pgvector keeps
// it in atttypmod.
func (s *Storage) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.WithContext(ctx).Raw(
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = ?::regclass AND attname = 'embedding'`, s.table,
	).Scan(&dim).Error
	return dim, err
}

func (s *Storage) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	db := s.db.WithContext(ctx)
	if s.hasTable(ctx) {
		current, err := s.dimension(ctx)
		if err != nil {
			return fmt.Errorf("read embedding dimension: %w", err)
		}
		if current != dim {
			return fmt.Errorf("table %s holds %d-dimensional vectors, cannot switch to %d", s.table, current, dim)
		}
		return nil
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id          BIGSERIAL PRIMARY KEY,
            book_title  TEXT NOT NULL,
            source_id   TEXT NOT NULL,
            chunk_index INTEGER NOT NULL,
            content     TEXT NOT NULL,
            embedding   vector(%d) NOT NULL
        )`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_book_title_idx ON %s (book_title)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_id_idx ON %s (source_id)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("init pgvector table: %w", err)
		}
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return errors.New("passages and vectors length mismatch")
	}
	if len(passages) == 0 {
		return nil
	}
	if !s.hasTable(ctx) {
		return domain.ErrIndexUnavailable
	}
	rows := make([]passageRow, len(passages))
	for i, p := range passages {
		rows[i] = passageRow{
			BookTitle:  p.BookTitle,
			SourceID:   p.SourceID,
			ChunkIndex: p.ChunkIndex,
			Content:    p.Content,
			Embedding:  pgvector.NewVector(vectors[i]),
		}
	}
	if err := s.db.WithContext(ctx).Table(s.table).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("insert passages: %w", err)
	}
	return nil
}

// Search ranks inside Postgres; the book_title predicate is part of the same
// query, so LIMIT applies to allowed passages only.
func (s *Storage) Search(ctx context.Context, vector []float32, filter vectorstore.BookFilter, k int) ([]domain.SearchResult, error) {
	if !s.hasTable(ctx) {
		return nil, domain.ErrIndexUnavailable
	}
	if filter.None() {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	q := pgvector.NewVector(vector)
	query := s.db.WithContext(ctx).
		Table(s.table).
		Select("book_title, source_id, chunk_index, content, 1 - (embedding <=> ?) AS score", q)
	if !filter.All() {
		query = query.Where("book_title IN ?", filter.Titles())
	}
	var rows []scoredRow
	err := query.
		Order(gorm.Expr("embedding <=> ?", q)).
		Order("id").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, domain.SearchResult{
			Passage: domain.Passage{Content: r.Content, BookTitle: r.BookTitle, SourceID: r.SourceID, ChunkIndex: r.ChunkIndex},
			Score:   r.Score,
		})
	}
	return vectorstore.TopK(results, k), nil
}

func (s *Storage) CountSource(ctx context.Context, sourceID string) (int, error) {
	if !s.hasTable(ctx) {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Table(s.table).Where("source_id = ?", sourceID).Count(&n).Error
	return int(n), err
}

func (s *Storage) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)).Error
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
