package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"bookrag/internal/session"
	"bookrag/internal/tui"
)

func newChatCmd(ctx *commandContext) *cobra.Command {
	var ingest, plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask spoiler-free questions about the books you have read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain = plain || !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout())

			a, err := ctx.openApp(cmd.Context(), plain)
			if err != nil {
				return err
			}
			defer a.Close()

			if ingest {
				results, err := ingestBooks(cmd.Context(), a, a.cfg.Ingest.SkipIndexed)
				if err != nil {
					return err
				}
				printIngestResults(cmd.OutOrStdout(), results)
			}

			llm, closeLLM, err := newCompletion(cmd.Context(), a.cfg.Completion)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, closeLLM)

			orch := session.New(a.catalog, a.svc, llm, session.Options{
				Series:       a.cfg.Series,
				TopK:         a.cfg.Session.TopK,
				StageTimeout: seconds(a.cfg.Session.StageTimeoutSecs),
				Logger:       a.log.Named("session"),
			})

			if plain {
				return tui.RunPlain(cmd.Context(), orch, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			p := tea.NewProgram(
				tui.New(cmd.Context(), orch, a.cfg.Series),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&ingest, "ingest", false, "Process pending books before the session starts")
	cmd.Flags().BoolVar(&plain, "plain", false, "Use a line-based prompt instead of the full screen UI")
	return cmd
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
