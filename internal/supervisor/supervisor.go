// Package supervisor launches the application and manages its lifetime.
//
// Direct mode runs the application in the foreground attached to the
// terminal. Supervised mode starts it in the background in its own process
// group, waits a fixed grace period, checks once that it is still alive and
// hands back a Handle that Stop later tears down.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
)

// AppSpec is the command line of the application.
type AppSpec struct {
	// Runtime is the interpreter, normally the environment's python.
	Runtime    string
	Entrypoint string
	// Dir is the checkout; the application runs with it as working directory.
	Dir  string
	Host string
	Port int
	// Env is the child's environment (nil inherits the launcher's).
	Env []string
}

// NewAppSpec builds the spec for "<runtime> <entrypoint> --server --host H --port P".
func NewAppSpec(runtime, entrypoint, dir, host string, port int) AppSpec {
	return AppSpec{Runtime: runtime, Entrypoint: entrypoint, Dir: dir, Host: host, Port: port}
}

// Args returns the arguments passed to the runtime.
func (s AppSpec) Args() []string {
	return []string{s.Entrypoint, "--server", "--host", s.Host, "--port", strconv.Itoa(s.Port)}
}

// Command returns the spec as a runner command.
func (s AppSpec) Command() runner.Command {
	return runner.Command{Name: s.Runtime, Args: s.Args(), Dir: s.Dir, Env: s.Env}
}

func (s AppSpec) String() string {
	return s.Command().String()
}

// LocalURL is where the application can be reached from this host. A
// wildcard bind address is mapped to loopback.
func (s AppSpec) LocalURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port)) + "/"
}

// State is the lifecycle state of a supervised process.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle is a supervised application process.
type Handle struct {
	spec    AppSpec
	cmd     *exec.Cmd
	tail    *Tail
	logPath string
	done    chan struct{}

	// mu guards the fields written by the waiter goroutine.
	mu       sync.Mutex
	state    State
	exitCode int
}

// PID returns the process ID, which is also its process group ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Spec returns the spec the process was started from.
func (h *Handle) Spec() AppSpec {
	return h.spec
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports without blocking whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ExitCode returns the exit status once exited; -1 while running or when
// the process was killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Output returns the most recent output of the process.
func (h *Handle) Output() string {
	return h.tail.String()
}

// LogPath returns the file receiving the process output, or "".
func (h *Handle) LogPath() string {
	return h.logPath
}

func (h *Handle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateStarting {
		h.state = StateRunning
	}
}

// Options configures a Supervisor.
type Options struct {
	// StartupGrace is the delay before the single liveness check.
	StartupGrace time.Duration
	// StopTimeout is the wait between SIGTERM and SIGKILL.
	StopTimeout time.Duration
	// HealthTimeout enables an HTTP probe after the liveness check when > 0.
	HealthTimeout time.Duration
	// OutputBufferSize bounds the in-memory output tail.
	OutputBufferSize int
	// LogFile receives supervised output; empty keeps only the tail.
	LogFile string
	// LogRotation bounds LogFile across runs.
	LogRotation logging.RotationConfig

	// Terminal streams for Direct mode.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// OptionsFromConfig builds Options from the serve configuration, attached
// to the process's standard streams.
func OptionsFromConfig(cfg *config.ServeConfig) Options {
	return Options{
		StartupGrace:     cfg.StartupGrace(),
		StopTimeout:      cfg.StopTimeout(),
		HealthTimeout:    cfg.HealthTimeout(),
		OutputBufferSize: cfg.OutputBufferSize,
		LogFile:          cfg.ResolveLogFile(),
		LogRotation: logging.RotationConfig{
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		},
		Stdin:            os.Stdin,
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
	}
}

// Supervisor launches application processes.
type Supervisor struct {
	runner runner.Runner
	opts   Options
	logger *logging.Logger
}

// New creates a Supervisor. The runner is used for Direct mode.
func New(r runner.Runner, opts Options, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Supervisor{runner: r, opts: opts, logger: logger.WithComponent("supervisor")}
}

// RunDirect runs the application attached to the terminal and blocks until
// it exits. The returned code is the application's exit status; a process
// killed by a signal is reported as 1. An application that cannot be
// started at all yields a *errors.StartupError.
func (s *Supervisor) RunDirect(ctx context.Context, spec AppSpec) (int, error) {
	cmd := spec.Command()
	cmd.Stdin = s.opts.Stdin
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}

	s.logger.Info("running application in foreground", "command", spec.String(), "dir", spec.Dir)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil && res.ExitCode == -1 && !isExitError(err) && ctx.Err() == nil {
		return 1, errors.NewStartupError("could not start application", fmt.Errorf("%w: %w", errors.ErrLaunchFailed, err)).
			WithCommand(spec.String())
	}

	code := res.ExitCode
	if code < 0 {
		code = 1
	}
	s.logger.Info("application exited", "exit_code", res.ExitCode)
	return code, nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// Start launches the application in the background and performs the
// startup check: after the grace period the process must still be alive,
// otherwise a fatal *errors.StartupError carries its exit code and output.
// When HealthTimeout is set the application must also answer GET / in time.
// On any failure nothing is left running.
func (s *Supervisor) Start(ctx context.Context, spec AppSpec) (*Handle, error) {
	h, err := s.spawn(spec)
	if err != nil {
		return nil, err
	}
	s.logger.Info("application started", "pid", h.PID(), "command", spec.String(), "log", h.logPath)

	timer := time.NewTimer(s.opts.StartupGrace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = s.Stop(h)
		return nil, errors.Wrap(errors.ErrCanceled, ctx.Err().Error())
	case <-timer.C:
	}

	if !s.IsAlive(h) {
		<-h.done
		s.logger.Error("application exited during startup", "exit_code", h.ExitCode())
		return nil, errors.NewStartupError("application exited during startup", errors.ErrProcessExited).
			WithCommand(spec.String()).
			WithExitCode(h.ExitCode()).
			WithOutput(h.Output())
	}
	h.markRunning()

	if s.opts.HealthTimeout > 0 {
		if err := WaitHealthy(ctx, spec.LocalURL(), s.opts.HealthTimeout); err != nil {
			_ = s.Stop(h)
			return nil, errors.NewStartupError("application did not answer its status endpoint", err).
				WithCommand(spec.String()).
				WithOutput(h.Output())
		}
		s.logger.Info("application healthy", "url", spec.LocalURL())
	}

	return h, nil
}

func (s *Supervisor) spawn(spec AppSpec) (*Handle, error) {
	h := &Handle{
		spec:     spec,
		tail:     NewTail(s.opts.OutputBufferSize),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	var out io.Writer = h.tail
	var logFile *logging.RotatingWriter
	if s.opts.LogFile != "" {
		w, err := logging.NewRotatingWriter(s.opts.LogFile, s.opts.LogRotation)
		if err != nil {
			return nil, errors.NewStartupError("cannot open server log", err).WithCommand(spec.String())
		}
		_, _ = fmt.Fprintf(w, "--- %s %s\n", time.Now().Format(time.RFC3339), spec.String())
		logFile = w
		h.logPath = s.opts.LogFile
		out = io.MultiWriter(w, h.tail)
	}

	cmd := exec.Command(spec.Runtime, spec.Args()...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = out
	cmd.Stderr = out
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, errors.NewStartupError("could not start application", fmt.Errorf("%w: %w", errors.ErrLaunchFailed, err)).
			WithCommand(spec.String())
	}
	h.cmd = cmd

	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		h.mu.Lock()
		h.state = StateExited
		h.exitCode = cmd.ProcessState.ExitCode()
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// IsAlive reports without blocking whether the handle's process is running.
func (s *Supervisor) IsAlive(h *Handle) bool {
	return h != nil && h.Alive()
}

// Stop terminates the process group: SIGTERM first, SIGKILL once
// StopTimeout passes. Failures are returned as non-fatal
// *errors.TerminationError values; callers log them and move on.
func (s *Supervisor) Stop(h *Handle) error {
	if h == nil || h.cmd == nil {
		return errors.NewTerminationError(0, errors.ErrNotRunning)
	}
	pid := h.PID()
	if !h.Alive() {
		return errors.NewTerminationError(pid, errors.ErrNotRunning)
	}

	s.logger.Info("stopping application", "pid", pid)
	if err := terminateGroup(h.cmd.Process); err != nil {
		if !h.Alive() {
			return nil
		}
		s.logger.Warn("terminate signal failed", "pid", pid, "error", err.Error())
		return errors.NewTerminationError(pid, err)
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	s.logger.Warn("application ignored SIGTERM, killing", "pid", pid, "timeout", s.opts.StopTimeout.String())
	if err := killGroup(h.cmd.Process); err != nil && h.Alive() {
		return errors.NewTerminationError(pid, err)
	}
	<-h.done
	return nil
}

// Wait blocks until the process exits or ctx is done and returns its exit code.
func (s *Supervisor) Wait(ctx context.Context, h *Handle) (int, error) {
	select {
	case <-h.done:
		return h.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}
