// Package gemini embeds text with Google's Gemini embedding models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"bookrag/internal/embedding"
)

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
	BatchSize int
}

// batchFunc performs one BatchEmbedContents round trip.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embedder implements embedding.Embedder on top of the genai client.
type Embedder struct {
	model     string
	batchSize int
	call      batchFunc
	closer    func() error

	mu        sync.RWMutex
	dimension int
}

// New opens a genai client authenticated with the key found in cfg.APIKeyEnv.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", cfg.APIKeyEnv)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	em := client.EmbeddingModel(cfg.Model)
	call := func(ctx context.Context, texts []string) ([][]float32, error) {
		b := em.NewBatch()
		for _, t := range texts {
			b.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("failed to embed content: %w", err)
		}
		out := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			if e == nil {
				return nil, errors.New("empty embedding returned from Gemini")
			}
			out = append(out, e.Values)
		}
		return out, nil
	}
	e := newEmbedder(cfg, call)
	e.closer = client.Close
	return e, nil
}

func newEmbedder(cfg Config, call batchFunc) *Embedder {
	size := cfg.BatchSize
	if size <= 0 {
		// BatchEmbedContents accepts at most 100 requests.
		size = 100
	}
	return &Embedder{model: cfg.Model, batchSize: size, call: call}
}

func (e *Embedder) Name() string { return "gemini" }

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, e.batchSize) {
		vecs, err := e.call(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(vecs), len(batch))
		}
		if err := e.record(vecs); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) record(vecs [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range vecs {
		if e.dimension == 0 {
			e.dimension = len(v)
		}
		if len(v) == 0 || len(v) != e.dimension {
			return fmt.Errorf("unexpected embedding size %d", len(v))
		}
	}
	return nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}
