package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bookrag/internal/extractor"
	"bookrag/internal/service"
)

func newIngestCmd(ctx *commandContext) *cobra.Command {
	var reset, reingest bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract, chunk and index every book in the books directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				if err := a.svc.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("reset index: %w", err)
				}
				a.log.Info("index cleared")
			}
			results, err := ingestBooks(cmd.Context(), a, a.cfg.Ingest.SkipIndexed && !reingest)
			if err != nil {
				return err
			}
			printIngestResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the index before ingesting")
	cmd.Flags().BoolVar(&reingest, "reingest", false, "Index books again even if the index already has passages for them")
	return cmd
}

func ingestBooks(ctx context.Context, a *app, skipIndexed bool) ([]service.BookResult, error) {
	a.log.Info("processing books", zap.Int("pending", len(a.catalog.Pending())), zap.Bool("skip_indexed", skipIndexed))
	results, err := a.svc.IngestCatalog(ctx, a.catalog, extractor.Auto{}, service.IngestOptions{
		Workers:     a.cfg.Ingest.Workers,
		SkipIndexed: skipIndexed,
	})
	if err != nil {
		return results, fmt.Errorf("ingest: %w", err)
	}
	a.log.Info("all books processed")
	return results, nil
}

func printIngestResults(out io.Writer, results []service.BookResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "Nothing to ingest.")
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "indexed"
		switch {
		case r.Err != nil:
			status = "skipped: " + r.Err.Error()
		case r.AlreadyIndexed:
			status = "already indexed"
		case r.Passages == 0:
			status = "no text"
		}
		rows = append(rows, []string{r.Title, strconv.Itoa(r.Passages), status})
	}
	fmt.Fprintln(out, renderTable([]string{"Title", "Passages", "Status"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
}
