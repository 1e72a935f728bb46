package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kalambet/finplan/internal/chat"
	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/plan"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const wordWrap = 100

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// renderMarkdown formats markdown for the terminal. With --no-color the
// plain notty style is used; if glamour fails the source is returned as is.
func renderMarkdown(src string) string {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if noColor {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return src
	}
	out, err := r.Render(src)
	if err != nil {
		return src
	}
	return out
}

// messageMarkdown renders one chat message with its sources as links.
func messageMarkdown(m chat.Message) string {
	var b strings.Builder
	who := "Advisor"
	if m.Role == gateway.RoleUser {
		who = "You"
	}
	fmt.Fprintf(&b, "**%s:** %s\n", who, m.Text)
	if len(m.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range m.Sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", s.Title, s.URL)
		}
	}
	return b.String()
}

func printMessage(w io.Writer, m chat.Message) {
	fmt.Fprint(w, renderMarkdown(messageMarkdown(m)))
}

// printDecodeFailure shows the narrative of a reply whose plan block could
// not be read.
func printDecodeFailure(w io.Writer, err error) {
	var de *plan.DecodeError
	if !errors.As(err, &de) || de.Narrative == "" {
		return
	}
	printWarning("The model replied, but without a readable plan. Its narrative:")
	fmt.Fprint(w, renderMarkdown(de.Narrative))
}
