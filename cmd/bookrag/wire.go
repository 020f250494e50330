package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"bookrag/internal/chunker"
	"bookrag/internal/completion"
	"bookrag/internal/completion/extractive"
	chatgemini "bookrag/internal/completion/gemini"
	"bookrag/internal/completion/ollama"
	chatopenai "bookrag/internal/completion/openai"
	"bookrag/internal/config"
	"bookrag/internal/domain"
	"bookrag/internal/embedding"
	embedgemini "bookrag/internal/embedding/gemini"
	"bookrag/internal/embedding/hashing"
	embedopenai "bookrag/internal/embedding/openai"
	"bookrag/internal/vectorstore"
	"bookrag/internal/vectorstore/memory"
	"bookrag/internal/vectorstore/pgvector"
	"bookrag/internal/vectorstore/qdrant"
	"bookrag/internal/vectorstore/sqlite"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func nopClose() error { return nil }

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "window", "":
		c, err := chunker.NewWindowChunker(cfg.ChunkSize, cfg.Overlap)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "sentence":
		c, err := chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, domain.ConfigErrorf("unknown chunker: %s", cfg.Type)
	}
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (embedding.Embedder, func() error, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nopClose, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, nil, domain.ConfigErrorf("openai embedder config missing")
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    seconds(cfg.OpenAI.TimeoutSecs),
			BatchSize:  cfg.OpenAI.BatchSize,
			AllowNoKey: !strings.Contains(cfg.OpenAI.BaseURL, "api.openai.com"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nopClose, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, nil, domain.ConfigErrorf("gemini embedder config missing")
		}
		e, err := embedgemini.New(ctx, embedgemini.Config{
			APIKeyEnv: cfg.Gemini.APIKeyEnv,
			Model:     cfg.Gemini.Model,
			BatchSize: cfg.Gemini.BatchSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		return e, e.Close, nil
	default:
		return nil, nil, domain.ConfigErrorf("unknown embedder: %s", cfg.Type)
	}
}

func newStore(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		if cfg.SQLite == nil {
			return nil, domain.ConfigErrorf("sqlite config missing")
		}
		return sqlite.New(cfg.SQLite.Path), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, domain.ConfigErrorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Distance:   cfg.Qdrant.Distance,
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	case "pgvector":
		if cfg.PGVector == nil {
			return nil, domain.ConfigErrorf("pgvector config missing")
		}
		dsn := cfg.PGVector.DSN
		if dsn == "" {
			dsn = os.Getenv(cfg.PGVector.DSNEnv)
		}
		if dsn == "" {
			return nil, domain.ConfigErrorf("pgvector: set dsn or the %s environment variable", cfg.PGVector.DSNEnv)
		}
		st, err := pgvector.Open(dsn, cfg.PGVector.Table)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, domain.ConfigErrorf("unknown vector store: %s", cfg.Type)
	}
}

func newCompletion(ctx context.Context, cfg config.CompletionConfig) (completion.Service, func() error, error) {
	timeout := seconds(cfg.TimeoutSecs)
	switch cfg.Provider {
	case "extractive", "":
		return extractive.New(cfg.MaxSentences), nopClose, nil
	case "openai":
		c, err := chatopenai.NewClient(chatopenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai completion init failed: %w", err)
		}
		return c, nopClose, nil
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		}), nopClose, nil
	case "gemini":
		p, err := chatgemini.New(ctx, chatgemini.Config{
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini completion init failed: %w", err)
		}
		return p, p.Close, nil
	default:
		return nil, nil, domain.ConfigErrorf("unknown completion provider: %s", cfg.Provider)
	}
}
