// Package runner executes external commands for the lifecycle components.
//
// Every tool the launcher drives (git, python, pip, poetry, the application
// and the tunnel client) goes through the Runner interface so tests can
// substitute a scripted fake.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Command describes a single invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory of the child. The launcher never changes
	// its own working directory.
	Dir string
	// Env replaces the child environment when non-nil.
	Env []string

	// Stdin, Stdout and Stderr attach the child to the given streams. When
	// Stdout and Stderr are both nil the combined output is captured into
	// Result.Output instead.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for messages and logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Attached reports whether the command writes to caller-provided streams.
func (c Command) Attached() bool {
	return c.Stdout != nil || c.Stderr != nil
}

// Result is the outcome of a finished command.
type Result struct {
	// Output is the combined stdout and stderr of a captured command.
	Output string
	// ExitCode is the child's exit status, or -1 if it never ran or was
	// killed by a signal.
	ExitCode int
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and waits for it. A non-zero exit is reported as an
	// error together with the Result so callers can inspect the code and
	// output.
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for the child after ctx is
	// cancelled and the interrupt was sent before it is killed.
	WaitDelay time.Duration
}

// New returns an ExecRunner with the default interrupt grace.
func New() *ExecRunner {
	return &ExecRunner{WaitDelay: 5 * time.Second}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	// Cancellation interrupts first so foreground tools get to clean up.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.WaitDelay

	var out bytes.Buffer
	if c.Attached() {
		cmd.Stdout = c.Stdout
		cmd.Stderr = c.Stderr
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	err := cmd.Run()
	res := Result{Output: out.String(), ExitCode: ExitCodeOf(err)}
	if err != nil {
		return res, fmt.Errorf("%s failed: %w", c, err)
	}
	return res, nil
}

// ExitCodeOf extracts the exit status from an error returned by os/exec.
// It returns 0 for nil and -1 when the process did not exit normally.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// IsNotFound reports whether err means the executable could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, syscall.ENOENT)
}

// LookPath is the executable lookup used by components; tests replace it.
var LookPath = exec.LookPath

// FirstLine returns the first non-empty trimmed line of s.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
