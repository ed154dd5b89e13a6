package cmds

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/conversation"
	"github.com/go-go-golems/chartchat/pkg/sandbox"
	"github.com/go-go-golems/chartchat/pkg/web"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

// turnPrinter prints assistant turns on the terminal and writes charts as HTML files.
type turnPrinter struct {
	w      io.Writer
	pretty bool
	outDir string
	page   string
	n      int
}

func (p *turnPrinter) print(turn *conversation.Turn) error {
	if text := strings.TrimSpace(turn.DisplayText); text != "" {
		if p.pretty {
			styled, err := glamour.Render(text, "dark")
			if err == nil {
				text = styled
			} else {
				log.Debug().Err(err).Msg("markdown rendering failed")
			}
		}
		_, _ = fmt.Fprintln(p.w, text)
	}
	if turn.Chart != nil {
		path, err := p.writeChart(turn.Chart)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(p.w, "Chart %q written to %s\n", turn.Chart.Title(), path)
	}
	switch {
	case turn.Error == sandbox.ErrNoChart.Error():
		_, _ = fmt.Fprintln(p.w, web.NoChartWarning)
	case turn.Error != "":
		_, _ = fmt.Fprintf(p.w, "Error: %s\n", turn.Error)
	}
	return nil
}

func (p *turnPrinter) writeChart(f *chart.Figure) (string, error) {
	p.n++
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating chart directory")
	}
	path := filepath.Join(p.outDir, fmt.Sprintf("chart-%s-%d.html", p.page, p.n))
	out, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating chart file")
	}
	defer func(out *os.File) {
		_ = out.Close()
	}(out)
	if err := chart.RenderHTML(out, f); err != nil {
		return "", errors.Wrap(err, "rendering chart")
	}
	return path, nil
}

// eofReader remembers that its input ended, the prompt reports that as an empty answer.
type eofReader struct {
	r   io.Reader
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.eof = true
	}
	return n, err
}

func NewAskCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "ask <page> <question>",
		Short: "Ask one question about a page and write the resulting chart",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(WithInteractiveKey(isTerminal(os.Stdin)))
			if err != nil {
				return err
			}
			if !app.Assistant.Enabled() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.Assistant.DisabledMessage())
				return nil
			}
			_, page, ds, err := app.LoadPage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			store := conversation.NewMemoryStore()
			turn, err := app.Assistant.Submit(cmd.Context(), uuid.NewString(), store, page, ds, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			p := &turnPrinter{w: cmd.OutOrStdout(), pretty: isTerminal(os.Stdout), outDir: outDir, page: page.Key}
			return p.print(turn)
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for chart HTML files")
	return cmd
}

func NewChatCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "chat <page>",
		Short: "Chat about a page; /reset clears the conversation, /quit leaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(WithInteractiveKey(isTerminal(os.Stdin)))
			if err != nil {
				return err
			}
			if !app.Assistant.Enabled() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.Assistant.DisabledMessage())
				return nil
			}
			p, page, ds, err := app.LoadPage(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			sessionID := uuid.NewString()
			store := conversation.NewMemoryStore()
			printer := &turnPrinter{w: cmd.OutOrStdout(), pretty: isTerminal(os.Stdout), outDir: outDir, page: page.Key}
			in := &eofReader{r: cmd.InOrStdin()}
			ui := &input.UI{
				Writer: cmd.OutOrStdout(),
				Reader: in,
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows). Ej: Mostra un grafico de barras con ventas por estacion\n", p.Title, ds.NumRows())

			for {
				question, err := ui.Ask(">", &input.Options{HideOrder: true})
				if err != nil {
					if errors.Is(err, input.ErrInterrupted) || errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				question = strings.TrimSpace(question)
				switch question {
				case "":
					if in.eof {
						return nil
					}
					continue
				case "/quit", "/exit":
					return nil
				case "/reset":
					store.Reset()
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
					continue
				}
				turn, err := app.Assistant.Submit(cmd.Context(), sessionID, store, page, ds, question)
				if err != nil {
					return err
				}
				if err := printer.print(turn); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for chart HTML files")
	return cmd
}
