package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"bookrag/internal/embedding"
	"bookrag/internal/httpclient"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// It also understands the Ollama-native single embedding response.
type Client struct {
	baseURL   string
	model     string
	batchSize int
	http      *httpclient.Client

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// AllowNoKey permits keyless local servers such as Ollama.
	AllowNoKey bool
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && !cfg.AllowNoKey {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	hc := httpclient.New(t, 5)
	if key != "" {
		hc.Header.Set("Authorization", "Bearer "+key)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		http:      hc,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension is known after the first successful Embed call.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns one embedding per text, sending at most batchSize texts per request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, c.batchSize) {
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	type reqBody struct {
		Input  []string `json:"input"`
		Prompt string   `json:"prompt,omitempty"`
		Model  string   `json:"model"`
	}
	body := reqBody{Input: batch, Model: c.model}
	if len(batch) == 1 {
		body.Prompt = batch[0]
	}
	payload, err := c.http.PostJSON(ctx, c.baseURL+"/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}

	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) == len(batch) {
		vecs := make([][]float32, len(batch))
		for i, d := range openaiOut.Data {
			idx := d.Index
			if idx < 0 || idx >= len(batch) || vecs[idx] != nil {
				idx = i
			}
			vecs[idx] = d.Embedding
		}
		return c.checked(vecs)
	}
	// Ollama-native shape: { "embedding": [...] }
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 && len(batch) == 1 {
		return c.checked([][]float32{ollamaOut.Embedding})
	}
	return nil, errors.New("no embedding returned")
}

// checked rejects empty or inconsistently sized vectors and records the dimension.
func (c *Client) checked(vecs [][]float32) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, errors.New("no embedding returned")
		}
		if c.dimension == 0 {
			c.dimension = len(v)
		}
		if len(v) != c.dimension {
			return nil, fmt.Errorf("embedding dimension changed from %d to %d", c.dimension, len(v))
		}
	}
	return vecs, nil
}
