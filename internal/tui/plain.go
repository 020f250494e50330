package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"bookrag/internal/session"
)

// RunPlain drives a session with line-based input, for pipes and terminals
// without TUI support. It returns when input ends or the reader exits.
func RunPlain(ctx context.Context, sess SessionPort, in io.Reader, out io.Writer) error {
	titles, err := sess.Begin(ctx)
	if err != nil {
		return err
	}
	printTitles(out, titles)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	prompt := func() {
		if sess.State() == session.StateCollectingHistory {
			fmt.Fprint(out, "Books you have read: ")
		} else {
			fmt.Fprint(out, "Your question: ")
		}
	}
	var lastReply string
	prompt()
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(sc.Text())
		if isExit(text) {
			_ = sess.Exit()
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		switch sess.State() {
		case session.StateCollectingHistory:
			if text == "/retry" {
				text = lastReply
			}
			if text == "" {
				fmt.Fprintln(out, "Tell me which books you have read.")
				break
			}
			lastReply = text
			rs, err := sess.CollectHistory(ctx, text)
			switch {
			case err != nil:
				fmt.Fprintf(out, "Error: %v (type /retry to send again)\n", err)
			case rs.Empty():
				fmt.Fprintln(out, "No titles recognised. Type /history to try again.")
			default:
				fmt.Fprintf(out, "You have read: %s\n", strings.Join(rs.Titles, ", "))
			}
		default:
			switch text {
			case "/history":
				titles, err := sess.Recollect()
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					break
				}
				printTitles(out, titles)
			case "/retry":
				if sess.State() == session.StateReady {
					fmt.Fprintln(out, "Nothing to retry.")
					break
				}
				a, err := sess.Retry(ctx)
				printAnswer(out, a, err)
			case "":
				fmt.Fprintln(out, "Please enter a valid question!")
			default:
				a, err := sess.Ask(ctx, text)
				printAnswer(out, a, err)
			}
		}
		prompt()
	}
	_ = sess.Exit()
	return sc.Err()
}

func printTitles(out io.Writer, titles []string) {
	fmt.Fprintln(out, "Available books:")
	for _, t := range titles {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintln(out, "Which of these books have you read? (type 'exit' to quit)")
}

func printAnswer(out io.Writer, a session.Answer, err error) {
	if err != nil {
		fmt.Fprintln(out, failureStatus(err))
		return
	}
	fmt.Fprintf(out, "\n%s\n", a.Text)
	if src := sourceLine(a.Passages); src != "" {
		fmt.Fprintln(out, src)
	}
	fmt.Fprintln(out)
}
