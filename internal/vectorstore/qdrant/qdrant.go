package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookrag/internal/domain"
	"bookrag/internal/httpclient"
	"bookrag/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// Book filtering is pushed down as a payload filter on book_title.
type Storage struct {
	base     string
	distance string
	http     *httpclient.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	// Distance is the Qdrant metric name; empty means Cosine.
	Distance string
	Timeout  time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = "Cosine"
	}
	hc := httpclient.New(timeout, 2)
	if cfg.APIKey != "" {
		hc.Header.Set("api-key", cfg.APIKey)
	}
	return &Storage{
		base:     strings.TrimRight(cfg.URL, "/") + "/collections/" + url.PathEscape(cfg.Collection),
		distance: distance,
		http:     hc,
	}
}

type payload struct {
	BookTitle  string `json:"book_title"`
	SourceID   string `json:"source_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

func isNotFound(err error) bool {
	var se *httpclient.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	data, err := s.http.Do(ctx, http.MethodGet, s.base, nil)
	switch {
	case err == nil:
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("decode qdrant collection info: %w", err)
		}
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("qdrant collection holds %d-dimensional vectors, cannot switch to %d", size, dimension)
		}
		return nil
	case !isNotFound(err):
		return fmt.Errorf("qdrant GET collection failed: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	if _, err := s.http.Do(ctx, http.MethodPut, s.base, body); err != nil {
		return fmt.Errorf("qdrant PUT collection failed: %w", err)
	}
	index := map[string]any{"field_name": "book_title", "field_schema": "keyword"}
	if _, err := s.http.Do(ctx, http.MethodPut, s.base+"/index?wait=true", index); err != nil {
		return fmt.Errorf("qdrant PUT payload index failed: %w", err)
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
	points := make([]map[string]any, len(passages))
	for i, p := range passages {
		points[i] = map[string]any{
			"id":     uuid.NewString(),
			"vector": vectors[i],
			"payload": payload{
				BookTitle:  p.BookTitle,
				SourceID:   p.SourceID,
				ChunkIndex: p.ChunkIndex,
				Content:    p.Content,
			},
		}
	}
	_, err := s.http.Do(ctx, http.MethodPut, s.base+"/points?wait=true", map[string]any{"points": points})
	if isNotFound(err) {
		return domain.ErrIndexUnavailable
	}
	if err != nil {
		return fmt.Errorf("qdrant PUT points failed: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, filter vectorstore.BookFilter, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	if filter.None() {
		// Still probe the collection so a missing index is reported.
		if _, err := s.http.Do(ctx, http.MethodGet, s.base, nil); err != nil {
			if isNotFound(err) {
				return nil, domain.ErrIndexUnavailable
			}
			return nil, err
		}
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if !filter.All() {
		req["filter"] = map[string]any{
			"must": []any{
				map[string]any{"key": "book_title", "match": map[string]any{"any": filter.Titles()}},
			},
		}
	}
	data, err := s.http.PostJSON(ctx, s.base+"/points/search", req)
	if isNotFound(err) {
		return nil, domain.ErrIndexUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode qdrant search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		if !filter.Allows(r.Payload.BookTitle) {
			continue
		}
		results = append(results, domain.SearchResult{
			Passage: domain.Passage{
				Content:    r.Payload.Content,
				BookTitle:  r.Payload.BookTitle,
				SourceID:   r.Payload.SourceID,
				ChunkIndex: r.Payload.ChunkIndex,
			},
			Score: r.Score,
		})
	}
	return vectorstore.TopK(results, k), nil
}

func (s *Storage) CountSource(ctx context.Context, sourceID string) (int, error) {
	req := map[string]any{
		"exact": true,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "source_id", "match": map[string]any{"value": sourceID}},
			},
		},
	}
	data, err := s.http.PostJSON(ctx, s.base+"/points/count", req)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("decode qdrant count: %w", err)
	}
	return resp.Result.Count, nil
}

// Clear drops the collection; a missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.http.Do(ctx, http.MethodDelete, s.base, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("qdrant DELETE collection failed: %w", err)
	}
	return nil
}

func (s *Storage) Close() error { return nil }
