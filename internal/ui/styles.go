package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark terminals
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	PassColor    = lipgloss.Color("#10B981") // Green
	WarnColor    = lipgloss.Color("#F59E0B") // Amber
	FailColor    = lipgloss.Color("#F87171") // Red
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// palette holds the styles bound to one renderer, so colour support is
// decided per output stream rather than for the whole process.
type palette struct {
	title lipgloss.Style
	pass  lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
	bold  lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		title: r.NewStyle().Bold(true).Foreground(PrimaryColor),
		pass:  r.NewStyle().Foreground(PassColor),
		warn:  r.NewStyle().Foreground(WarnColor),
		fail:  r.NewStyle().Bold(true).Foreground(FailColor),
		muted: r.NewStyle().Foreground(MutedColor),
		bold:  r.NewStyle().Bold(true),
	}
}
