package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/lifecycle"
	"github.com/zerepy/zerepyctl/internal/lock"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/probe"
	"github.com/zerepy/zerepyctl/internal/runner"
	"github.com/zerepy/zerepyctl/internal/ui"
)

// session is everything one command invocation needs: validated
// configuration, the resolved layout, the printer and the debug log.
type session struct {
	cfg    *config.Config
	layout lifecycle.Layout
	out    *ui.Printer
	logger *logging.Logger
	runner runner.Runner
}

func newSession(cmd *cobra.Command, op string) (*session, error) {
	if configErr != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("failed to read config file: %w", configErr)}
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	root := v.GetString("root")
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, &ExitError{Code: 1, Err: fmt.Errorf("failed to get working directory: %w", err)}
		}
	}
	layout, err := lifecycle.NewLayout(root, cfg)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("invalid root %s: %w", root, err)}
	}

	out := ui.New(cmd.OutOrStdout())
	logger := openLogger(cfg, out).
		WithRun(logging.NewRunID()).
		With("command", op)
	logger.Info("starting", "version", Version, "root", layout.Root, "config", v.ConfigFileUsed())

	return &session{
		cfg:    cfg,
		layout: layout,
		out:    out,
		logger: logger,
		runner: runner.New(),
	}, nil
}

// openLogger returns the file logger, or a no-op logger when logging is
// disabled or the log cannot be opened. Logging never blocks a command.
func openLogger(cfg *config.Config, out *ui.Printer) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(logging.Options{
		Dir:   cfg.Logging.ResolveDir(),
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	})
	if err != nil {
		out.Warn("debug log disabled: %v", err)
		return logging.NopLogger()
	}
	return logger
}

func (s *session) prober() *probe.Prober {
	return probe.New(s.runner, probe.DefaultRequirements(s.cfg),
		probe.WithReporter(s.out),
		probe.WithLogger(s.logger),
	)
}

// acquireLock keeps other invocations off the root until release.
func (s *session) acquireLock(op string) (*lock.Lock, error) {
	l, err := lock.Acquire(filepath.Join(config.StateDir(), "locks"), s.layout.Root, op, s.logger)
	if err != nil {
		return nil, s.fail(1, err)
	}
	return l, nil
}

func (s *session) close() {
	_ = s.logger.Close()
}

// fail logs err and converts it into the command's exit error. A zero
// code is taken from the error's fatality.
func (s *session) fail(code int, err error) error {
	s.logger.Error("command failed",
		"step", errors.StepOf(err),
		"phase", string(lifecycle.PhaseOf(err)),
		"severity", errors.GetSeverity(err).String(),
		"error", err.Error(),
	)
	if code == 0 {
		code = errors.ExitCode(err)
	}
	if code == 0 {
		code = 1
	}
	return &ExitError{Code: code, Err: err}
}
