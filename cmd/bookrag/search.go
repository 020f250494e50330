package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bookrag/internal/domain"
)

func newSearchCmd(ctx *commandContext) *cobra.Command {
	var books []string
	var all bool
	var k int

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Show the passages retrieved for a query",
		Long: `Search prints the passages the researcher would see for a query.
Restrict it to read books with --book (repeatable), or pass --all to search
every book, spoilers included.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(books) > 0) {
				return errors.New("pass either --book or --all")
			}
			a, err := ctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			var results []domain.SearchResult
			if all {
				results, err = a.svc.SearchAll(cmd.Context(), query, k)
			} else {
				titles := make([]string, 0, len(books))
				for _, b := range books {
					if rec, ok := a.catalog.ResolveTitle(b); ok {
						titles = append(titles, rec.Title)
					} else {
						titles = append(titles, strings.TrimSpace(b))
					}
				}
				results, err = a.svc.Search(cmd.Context(), query, titles, k)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No passages found.")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					fmt.Sprintf("%d", r.Rank),
					fmt.Sprintf("%.3f", r.Score),
					r.Passage.BookTitle,
					snippet(r.Passage.Content, 160),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Rank", "Score", "Book", "Passage"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&books, "book", nil, "Title of a book you have read (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Search every book, ignoring what you have read")
	cmd.Flags().IntVarP(&k, "top", "k", 5, "Number of passages to show")
	return cmd
}

func snippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
