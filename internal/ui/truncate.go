package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Truncate shortens s to maxWidth visual columns, ending it with "..." when
// anything was cut. Escape sequences and wide characters are measured by
// their rendered width, so styled output can be truncated safely.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// The tail counts toward maxWidth
	return ansi.Truncate(s, maxWidth, "...")
}
