package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
	"bookrag/internal/vectorstore/vectorstoretest"
)

// fakeQdrant implements the handful of REST endpoints the store uses for a
// single collection.
type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	size     int
	points   []fakePoint
	lastBody map[string]any
	apiKeys  []string
}

type fakePoint struct {
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := strings.TrimPrefix(r.URL.Path, "/collections/books")
	notFound := func() { http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound) }
	ok := func(result any) { _ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"}) }

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.lastBody = body

	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.exists {
			notFound()
			return
		}
		ok(map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}}})
	case path == "" && r.Method == http.MethodPut:
		f.exists = true
		f.size = int(body["vectors"].(map[string]any)["size"].(float64))
		ok(true)
	case path == "" && r.Method == http.MethodDelete:
		f.exists, f.size, f.points = false, 0, nil
		ok(true)
	case !f.exists:
		notFound()
	case path == "/index":
		ok(map[string]any{})
	case path == "/points" && r.Method == http.MethodPut:
		raw, _ := json.Marshal(body["points"])
		var pts []fakePoint
		_ = json.Unmarshal(raw, &pts)
		for _, p := range pts {
			if len(p.Vector) != f.size {
				http.Error(w, `{"status":{"error":"Wrong input: Vector dimension error"}}`, http.StatusBadRequest)
				return
			}
		}
		f.points = append(f.points, pts...)
		ok(map[string]any{"status": "completed"})
	case path == "/points/search":
		f.search(body, ok)
	case path == "/points/count":
		want := body["filter"].(map[string]any)["must"].([]any)[0].(map[string]any)["match"].(map[string]any)["value"]
		n := 0
		for _, p := range f.points {
			if p.Payload["source_id"] == want {
				n++
			}
		}
		ok(map[string]any{"count": n})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func (f *fakeQdrant) search(body map[string]any, ok func(any)) {
	raw, _ := json.Marshal(body["vector"])
	var q []float32
	_ = json.Unmarshal(raw, &q)

	var allowed []any
	if flt, has := body["filter"]; has {
		cond := flt.(map[string]any)["must"].([]any)[0].(map[string]any)
		allowed = cond["match"].(map[string]any)["any"].([]any)
	}
	type hit struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var hits []hit
	for _, p := range f.points {
		if allowed != nil && !slices.Contains(allowed, p.Payload["book_title"]) {
			continue
		}
		hits = append(hits, hit{Score: vectorstore.Cosine(p.Vector, q), Payload: p.Payload})
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if limit := int(body["limit"].(float64)); len(hits) > limit {
		hits = hits[:limit]
	}
	ok(hits)
}

func newFake(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL + "/", APIKey: "k", Collection: "books"}), fake
}

func TestStorage(t *testing.T) {
	vectorstoretest.Run(t, func(t *testing.T) vectorstore.Storage {
		s, _ := newFake(t)
		return s
	})
}

func TestSearch_SendsBookFilter(t *testing.T) {
	s, fake := newFake(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Insert(ctx, []domain.Passage{{Content: "x", BookTitle: "Elantris", SourceID: "e.epub"}}, [][]float32{{1, 0}}))

	_, err := s.Search(ctx, []float32{1, 0}, vectorstore.OnlyBooks("Elantris", "Warbreaker"), 3)
	require.NoError(t, err)

	must := fake.lastBody["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "book_title", cond["key"])
	assert.Equal(t, []any{"Elantris", "Warbreaker"}, cond["match"].(map[string]any)["any"])
	assert.Equal(t, float64(3), fake.lastBody["limit"])

	_, err = s.Search(ctx, []float32{1, 0}, vectorstore.AllBooks(), 3)
	require.NoError(t, err)
	assert.NotContains(t, fake.lastBody, "filter")

	for _, k := range fake.apiKeys {
		assert.Equal(t, "k", k)
	}
}

func TestInit_RejectsDimensionChange(t *testing.T) {
	s, _ := newFake(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Init(ctx, 4))
}

func TestClear_MissingCollectionIsFine(t *testing.T) {
	s, _ := newFake(t)
	assert.NoError(t, s.Clear(context.Background()))
}
