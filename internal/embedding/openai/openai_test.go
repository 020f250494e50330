package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("BOOKRAG_TEST_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "BOOKRAG_TEST_EMBED_KEY"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKeyEnv: "BOOKRAG_TEST_EMBED_KEY", AllowNoKey: true})
	assert.NoError(t, err)
}

func TestEmbed_BatchesAndOrdersByIndex(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-small", req.Model)
		sizes = append(sizes, len(req.Input))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		// Reply in reverse order to check index handling.
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), 1}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	t.Setenv("BOOKRAG_TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKeyEnv: "BOOKRAG_TEST_EMBED_KEY", Model: "embed-small", BatchSize: 2})
	require.NoError(t, err)
	assert.Zero(t, c.Dimension())

	vecs, err := c.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, vecs)
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_OllamaNativeShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25,0.125]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, AllowNoKey: true})
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), []string{"Hoid"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25, 0.125}}, vecs)
}

func TestEmbed_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, AllowNoKey: true})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"x", "y"})
	assert.Error(t, err)
}

func TestEmbed_NoTextsNoRequest(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", AllowNoKey: true})
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
