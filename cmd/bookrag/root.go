package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bookrag/internal/catalog"
	"bookrag/internal/config"
	"bookrag/internal/extractor"
	"bookrag/internal/logging"
	"bookrag/internal/service"
	"bookrag/internal/vectorstore"
)

func newRootCmd() *cobra.Command {
	var configFlag, booksDirFlag string
	var verbose bool

	ctx := newCommandContext(&configFlag, &booksDirFlag, &verbose)

	cmd := &cobra.Command{
		Use:   "bookrag",
		Short: "Spoiler-free questions and answers about a book series",
		Long: `bookrag indexes the books of a series and answers questions about them
using only the books you have already read.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ./bookrag.yaml or ~/.config/bookrag/config.yaml)")
	cmd.PersistentFlags().StringVar(&booksDirFlag, "books-dir", "", "Directory holding the book files")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newBooksCmd(ctx))
	cmd.AddCommand(newIngestCmd(ctx))
	cmd.AddCommand(newSearchCmd(ctx))
	cmd.AddCommand(newChatCmd(ctx))

	return cmd
}

type commandContext struct {
	configFlag   *string
	booksDirFlag *string
	verbose      *bool

	configOnce sync.Once
	config     *config.AppConfig
	configErr  error
}

func newCommandContext(configFlag, booksDirFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		booksDirFlag: booksDirFlag,
		verbose:      verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.AppConfig, error) {
	c.configOnce.Do(func() {
		var (
			cfg *config.AppConfig
			err error
		)
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			cfg, err = config.Load(path)
		} else {
			cfg, _, err = config.LoadDefault()
		}
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if dir := strings.TrimSpace(*c.booksDirFlag); dir != "" {
			cfg.BooksDir = dir
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the process logger. console is false when a full screen UI
// owns the terminal.
func (c *commandContext) logger(cfg *config.AppConfig, console bool) *zap.Logger {
	opts := logging.FromConfig(cfg.Log, *c.verbose)
	if !console {
		opts.Console = nil
	}
	return logging.New(opts)
}

// app is the wired set of components shared by the commands.
type app struct {
	cfg     *config.AppConfig
	log     *zap.Logger
	catalog *catalog.Catalog
	store   vectorstore.Storage
	svc     *service.RetrievalService
	closers []func() error
}

func (c *commandContext) openApp(ctx context.Context, console bool) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log := c.logger(cfg, console)

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.catalog, err = catalog.Load(cfg.BooksDir, extractor.Auto{}, log.Named("catalog"))
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, closeEmb, err := newEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeEmb)
	a.store, err = newStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	a.svc = service.NewRetrievalService(ch, emb, a.store, service.Options{
		Logger:        log.Named("retrieval"),
		QueryCacheTTL: seconds(cfg.Cache.QueryTTLSecs),
	})
	log.Debug("components ready",
		zap.String("books_dir", cfg.BooksDir),
		zap.Int("books", a.catalog.Len()),
		zap.String("embedder", emb.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
	)
	ok = true
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.log.Sync()
}
