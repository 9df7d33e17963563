// Package ui prints the human-facing status lines of zerepyctl.
//
// On a terminal each line gets a coloured glyph; anywhere else (pipes, CI
// logs, tests) the same line is prefixed with a bracketed plain-text tag.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Printer writes status lines. It is safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool
	width  int
	p      palette
}

// New returns a Printer for w. Styling is enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	return newPrinter(w, IsTerminal(w))
}

// Plain returns a Printer that never emits escape sequences.
func Plain(w io.Writer) *Printer {
	return newPrinter(w, false)
}

func newPrinter(w io.Writer, styled bool) *Printer {
	p := &Printer{
		out:    w,
		styled: styled,
		p:      newPalette(lipgloss.NewRenderer(w)),
	}
	if f, ok := w.(*os.File); ok && styled {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

// WithWidth limits Block lines to width columns. Zero disables the limit.
func (p *Printer) WithWidth(width int) *Printer {
	p.width = width
	return p
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the underlying stream.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Title prints a section heading.
func (p *Printer) Title(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.styled {
		msg = p.p.title.Render(msg)
	}
	p.println(msg)
}

// Pass prints a successful check or step.
func (p *Printer) Pass(format string, args ...any) {
	p.status("✓", "[ok]", p.p.pass, format, args...)
}

// Warn prints a degraded but non-fatal condition.
func (p *Printer) Warn(format string, args ...any) {
	p.status("!", "[warn]", p.p.warn, format, args...)
}

// Fail prints a fatal condition.
func (p *Printer) Fail(format string, args ...any) {
	p.status("✗", "[fail]", p.p.fail, format, args...)
}

// Info prints a neutral progress line.
func (p *Printer) Info(format string, args ...any) {
	p.status("→", "[..]", p.p.muted, format, args...)
}

// Hint prints an indented follow-up line under the previous status.
func (p *Printer) Hint(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.styled {
		msg = p.p.muted.Render(msg)
	}
	p.println("    " + msg)
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key, value string) {
	k := fmt.Sprintf("%-12s", key+":")
	if p.styled {
		k = p.p.bold.Render(k)
	}
	p.println("  " + k + " " + value)
}

// Block prints multi-line text such as captured process output, indented.
// Lines wider than the printer's width are truncated.
func (p *Printer) Block(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if p.width > 0 {
			line = Truncate(line, p.width-len("    | "))
		}
		if p.styled {
			line = p.p.muted.Render(line)
		}
		p.println("    | " + line)
	}
}

func (p *Printer) status(glyph, tag string, style lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	prefix := tag
	if p.styled {
		prefix = style.Render(glyph)
	}
	p.println(prefix + " " + msg)
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, s)
}
