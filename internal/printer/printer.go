// Package printer writes the CLI's human-facing status lines and tables.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

func init() {
	// Color stays on when piped into a log file; NO_COLOR turns it off.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes status lines to Out and errors to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a printer over out and errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Success prints a green line with a checkmark prefix.
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.Out, msg)
}

// Info prints a plain line.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.Out, format, a...)
}

// Warning prints a yellow line with a warning prefix.
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.Out, msg)
}

// Step prints a cyan progress line.
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.Out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a red title, an explanation and numbered suggestions to Err.
func (p *Printer) Error(title, explanation string, suggestions []string) {
	red.Fprintf(p.Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(p.Err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(p.Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(p.Err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(p.Err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}
}

// Table returns a rounded table rendering to Out.
func (p *Printer) Table() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(p.Out)
	return t
}
