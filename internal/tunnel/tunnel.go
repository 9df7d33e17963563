// Package tunnel runs a public tunnel client in front of the supervised
// application.
//
// The client (ngrok or cloudflared) runs in the foreground attached to the
// terminal so its status screen is visible. The application it exposes is
// released exactly once when the tunnel returns, whatever the reason.
package tunnel

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
)

// Client describes a tunnel client executable.
type Client struct {
	// Kind is config.TunnelNgrok or config.TunnelCloudflared.
	Kind string
	// Executable is the command to run.
	Executable string
}

// ClientFromConfig returns the configured client.
func ClientFromConfig(cfg *config.TunnelConfig) Client {
	return Client{Kind: cfg.Client, Executable: cfg.Executable()}
}

// Args returns the client arguments exposing the local port.
func (c Client) Args(port int) []string {
	switch c.Kind {
	case config.TunnelCloudflared:
		return []string{"tunnel", "--url", "http://localhost:" + strconv.Itoa(port)}
	default:
		return []string{"http", strconv.Itoa(port)}
	}
}

// Command returns the foreground command for port.
func (c Client) Command(port int) runner.Command {
	return runner.Command{Name: c.Executable, Args: c.Args(port)}
}

// Coordinator runs the tunnel and owns the release of the exposed process.
type Coordinator struct {
	runner runner.Runner
	client Client
	logger *logging.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStreams attaches the tunnel to the given streams instead of the
// process's own terminal.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(c *Coordinator) {
		c.stdin, c.stdout, c.stderr = stdin, stdout, stderr
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Coordinator for client.
func New(r runner.Runner, client Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner: r,
		client: client,
		logger: logging.NopLogger(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("tunnel")
	return c
}

// Client returns the client the coordinator runs.
func (c *Coordinator) Client() Client {
	return c.client
}

// Run exposes port through the tunnel and blocks until the tunnel exits or
// ctx is cancelled. release runs exactly once before Run returns, including
// when the tunnel fails to start or panics; its error is logged, never
// returned.
//
// The exit code is 0 when the tunnel stopped because of an interrupt and
// the tunnel's own exit code when it died by itself. A client that cannot
// be launched yields exit code 1 and a non-fatal *errors.ToolError.
func (c *Coordinator) Run(ctx context.Context, port int, release func() error) (code int, err error) {
	defer func() {
		if release == nil {
			return
		}
		if rerr := release(); rerr != nil {
			c.logger.Warn("release after tunnel exit failed", "error", rerr.Error())
		}
	}()

	cmd := c.client.Command(port)
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	c.logger.Info("starting tunnel", "command", cmd.String(), "port", port)
	res, runErr := c.runner.Run(ctx, cmd)

	switch {
	case ctx.Err() != nil:
		c.logger.Info("tunnel interrupted")
		return 0, nil
	case runErr == nil:
		c.logger.Info("tunnel exited")
		return 0, nil
	case res.ExitCode < 0 && runner.IsNotFound(runErr):
		return 1, errors.NewToolError(c.client.Executable, false, runErr).WithCommand(cmd.String())
	default:
		code = res.ExitCode
		if code < 0 {
			code = 1
		}
		c.logger.Warn("tunnel exited unexpectedly", "exit_code", res.ExitCode, "error", runErr.Error())
		return code, nil
	}
}
