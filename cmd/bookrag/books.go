package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bookrag/internal/domain"
	"bookrag/internal/vectorstore"
)

func newBooksCmd(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the books found in the books directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			books := a.catalog.Books()
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintf(out, "No books found in %s\n", a.cfg.BooksDir)
				return nil
			}

			counter, _ := a.store.(vectorstore.SourceCounter)
			rows := make([][]string, 0, len(books))
			for _, b := range books {
				passages := "-"
				if counter != nil {
					n, err := counter.CountSource(cmd.Context(), b.SourceID)
					switch {
					case err == nil:
						passages = strconv.Itoa(n)
					case errors.Is(err, domain.ErrIndexUnavailable):
					default:
						return err
					}
				}
				format := strings.TrimPrefix(strings.ToLower(filepath.Ext(b.SourceID)), ".")
				rows = append(rows, []string{b.Title, b.SourceID, format, passages})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "File", "Format", "Passages"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}
