package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bookrag/internal/domain"
)

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ChunkerConfig configures how chapters are split into passages.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// GeminiEmbedderConfig configures the Gemini embedding model.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini    *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// SQLiteConfig points at the on-disk index file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains the Postgres DSN and table for the pgvector store.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// CompletionConfig selects the language model provider used by session stages.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	// MaxSentences bounds summaries of the extractive provider.
	MaxSentences int `yaml:"max_sentences"`
}

type SessionConfig struct {
	TopK             int `yaml:"top_k"`
	StageTimeoutSecs int `yaml:"stage_timeout_secs"`
}

type IngestConfig struct {
	Workers     int  `yaml:"workers"`
	SkipIndexed bool `yaml:"skip_indexed"`
}

type CacheConfig struct {
	QueryTTLSecs int `yaml:"query_ttl_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Series      string            `yaml:"series"`
	BooksDir    string            `yaml:"books_dir"`
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Completion  CompletionConfig  `yaml:"completion"`
	Session     SessionConfig     `yaml:"session"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Cache       CacheConfig       `yaml:"cache"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	// Booleans whose default is true must be set before decoding; a missing
	// key leaves them untouched.
	cfg := AppConfig{Ingest: IngestConfig{SkipIndexed: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.ConfigErrorf("parse %s: %v", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./bookrag.yaml first, then ~/.config/bookrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/bookrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "bookrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bookrag", "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *AppConfig {
	cfg := &AppConfig{
		Series:      "the series",
		BooksDir:    "./books",
		Log:         LogConfig{Level: "info"},
		Chunker:     ChunkerConfig{Type: "window", ChunkSize: 1000, Overlap: 200},
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
		Completion:  CompletionConfig{Provider: "extractive"},
		Ingest:      IngestConfig{SkipIndexed: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Series == "" {
		cfg.Series = "the series"
	}
	if cfg.BooksDir == "" {
		cfg.BooksDir = "./books"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 10
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 30
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 200
		}
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
		if cfg.Embedder.Gemini.BatchSize == 0 {
			cfg.Embedder.Gemini.BatchSize = 100
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	switch cfg.VectorStore.Type {
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = filepath.Join("bookrag_index", "passages.db")
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "book_passages"
		}
		if cfg.VectorStore.Qdrant.Distance == "" {
			cfg.VectorStore.Qdrant.Distance = "Cosine"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		if cfg.VectorStore.PGVector.DSNEnv == "" {
			cfg.VectorStore.PGVector.DSNEnv = "BOOKRAG_PG_DSN"
		}
		if cfg.VectorStore.PGVector.Table == "" {
			cfg.VectorStore.PGVector.Table = "book_passages"
		}
	}

	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "extractive"
	}
	switch cfg.Completion.Provider {
	case "openai":
		if cfg.Completion.BaseURL == "" {
			cfg.Completion.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Completion.APIKeyEnv == "" {
			cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "gpt-4o-mini"
		}
	case "ollama":
		if cfg.Completion.BaseURL == "" {
			cfg.Completion.BaseURL = "http://localhost:11434"
		}
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "llama3.1"
		}
	case "gemini":
		if cfg.Completion.APIKeyEnv == "" {
			cfg.Completion.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "gemini-1.5-flash"
		}
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 60
	}
	if cfg.Completion.MaxSentences == 0 {
		cfg.Completion.MaxSentences = 5
	}

	if cfg.Session.TopK == 0 {
		cfg.Session.TopK = 5
	}
	if cfg.Session.StageTimeoutSecs == 0 {
		cfg.Session.StageTimeoutSecs = 120
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Cache.QueryTTLSecs == 0 {
		cfg.Cache.QueryTTLSecs = 600
	}
}

// Validate reports inconsistent settings as errors wrapping domain.ErrConfig.
func (c *AppConfig) Validate() error {
	switch c.Chunker.Type {
	case "window":
		if c.Chunker.ChunkSize <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
			return domain.ConfigErrorf("chunker: overlap %d must be in [0, chunk_size %d)", c.Chunker.Overlap, c.Chunker.ChunkSize)
		}
	case "sentence":
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			return domain.ConfigErrorf("chunker: overlap_sentences %d must be in [0, sentences_per_chunk %d)", c.Chunker.OverlapSentences, c.Chunker.SentencesPerChunk)
		}
	default:
		return domain.ConfigErrorf("chunker: unknown type %q", c.Chunker.Type)
	}

	switch c.Embedder.Type {
	case "hashing", "openai", "gemini":
	default:
		return domain.ConfigErrorf("embedder: unknown type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite", "qdrant", "pgvector":
	default:
		return domain.ConfigErrorf("vector_store: unknown type %q", c.VectorStore.Type)
	}
	switch c.Completion.Provider {
	case "extractive", "openai", "ollama", "gemini":
	default:
		return domain.ConfigErrorf("completion: unknown provider %q", c.Completion.Provider)
	}

	if c.Session.TopK < 0 {
		return domain.ConfigErrorf("session: top_k must not be negative")
	}
	if c.Ingest.Workers < 0 {
		return domain.ConfigErrorf("ingest: workers must not be negative")
	}
	if strings.TrimSpace(c.BooksDir) == "" {
		return domain.ConfigErrorf("books_dir is required")
	}
	return nil
}
