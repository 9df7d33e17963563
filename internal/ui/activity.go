package ui

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Activity is a long-running step shown while it runs. On a terminal a
// spinner animates next to its message until Stop; elsewhere the message
// is printed once as an info line.
type Activity struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// stopActivityMsg asks the spinner program to clear its line and exit.
type stopActivityMsg struct{}

type activityModel struct {
	spinner  spinner.Model
	message  string
	stopping bool
}

func (m activityModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m activityModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(stopActivityMsg); ok {
		m.stopping = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m activityModel) View() string {
	if m.stopping {
		return ""
	}
	return m.spinner.View() + " " + m.message
}

// Start begins an activity. The caller must Stop it before printing the
// step's outcome.
func (p *Printer) Start(format string, args ...any) *Activity {
	msg := fmt.Sprintf(format, args...)
	if !p.styled {
		p.Info("%s", msg)
		return &Activity{}
	}

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(p.p.muted),
	)
	// No input and no signal handler: Ctrl-C must still reach the
	// command's context while the spinner runs.
	program := tea.NewProgram(
		activityModel{spinner: spin, message: msg},
		tea.WithOutput(p.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	a := &Activity{program: program, done: make(chan struct{})}
	go func() {
		defer close(a.done)
		_, _ = program.Run()
	}()
	return a
}

// Stop clears the spinner line and waits for it to finish. Safe to call
// more than once and on an activity that never animated.
func (a *Activity) Stop() {
	if a == nil || a.program == nil {
		return
	}
	a.once.Do(func() {
		a.program.Send(stopActivityMsg{})
		<-a.done
	})
}
