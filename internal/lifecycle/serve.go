package lifecycle

import (
	"context"
	"os"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/probe"
	"github.com/zerepy/zerepyctl/internal/source"
	"github.com/zerepy/zerepyctl/internal/supervisor"
	"github.com/zerepy/zerepyctl/internal/ui"
)

// Mode is how serve ran the application.
type Mode string

const (
	// ModeDirect runs the application in the foreground.
	ModeDirect Mode = "direct"
	// ModeSupervised runs it in the background behind a tunnel.
	ModeSupervised Mode = "supervised"
)

// Server runs probing → precondition → launching → [tunneling] → stopped.
type Server struct {
	Layout Layout
	Serve  config.ServeConfig
	// TunnelClient is the probe requirement name of the tunnel client, or ""
	// when tunnelling is disabled.
	TunnelClient string

	Probe    Prober
	Launcher Launcher
	Tunnel   Tunneler

	Out    *ui.Printer
	Logger *logging.Logger

	// Environ is the base environment of the application; nil means os.Environ.
	Environ func() []string

	mode Mode
}

// Mode returns the mode of the last Run, or "" before launch.
func (s *Server) Mode() Mode {
	return s.mode
}

// Spec returns the application command for the layout and serve settings.
func (s *Server) Spec() supervisor.AppSpec {
	return supervisor.NewAppSpec(
		s.Layout.Env.Python(),
		s.Serve.Entrypoint,
		s.Layout.Checkout,
		s.Serve.Host,
		s.Serve.Port,
	)
}

// Run serves the application and returns the launcher's exit code.
//
// Without a usable tunnel client the application runs in the foreground and
// its exit code is returned. Otherwise it is started in the background, the
// tunnel runs in the foreground and the application is stopped when the
// tunnel returns; an interrupted tunnel is a clean stop.
func (s *Server) Run(ctx context.Context) (int, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	out := s.Out

	phase := PhaseProbing
	logger.WithPhase(string(phase)).Info("checking tools")
	out.Title("Checking tools")
	report, err := s.Probe.Check(ctx, probe.ModeServe)
	if err != nil {
		return 1, failed("serve", phase, err)
	}

	phase = PhasePrecondition
	if err := s.checkInstalled(); err != nil {
		logger.WithPhase(string(phase)).Error("not installed", "error", err.Error())
		return 1, failed("serve", phase, err)
	}

	phase = PhaseLaunching
	spec := s.Spec()
	act := s.Layout.Env.Activate(s.environ())
	defer act.Deactivate()
	spec.Env = act.Env()

	if s.TunnelClient == "" || s.Tunnel == nil || !report.Available(s.TunnelClient) {
		return s.runDirect(ctx, logger.WithPhase(string(phase)), spec)
	}
	return s.runSupervised(ctx, logger, spec)
}

func (s *Server) checkInstalled() error {
	if !source.Present(s.Layout.Checkout) {
		return errors.NewPreconditionError(s.Layout.Checkout, errors.ErrNotInstalled)
	}
	if !s.Layout.Env.Exists() {
		return errors.NewPreconditionError(s.Layout.Env.Dir, errors.ErrEnvMissing)
	}
	return nil
}

func (s *Server) environ() []string {
	if s.Environ != nil {
		return s.Environ()
	}
	return os.Environ()
}

func (s *Server) runDirect(ctx context.Context, logger *logging.Logger, spec supervisor.AppSpec) (int, error) {
	s.mode = ModeDirect
	s.Out.Info("serving on %s:%d", spec.Host, spec.Port)
	logger.Info("running direct", "command", spec.String())

	code, err := s.Launcher.RunDirect(ctx, spec)
	if err != nil {
		return code, failed("serve", PhaseLaunching, err)
	}
	logger.WithPhase(string(PhaseStopped)).Info("application exited", "exit_code", code)
	return code, nil
}

func (s *Server) runSupervised(ctx context.Context, logger *logging.Logger, spec supervisor.AppSpec) (int, error) {
	s.mode = ModeSupervised
	launchLog := logger.WithPhase(string(PhaseLaunching))
	s.Out.Info("starting server on %s:%d", spec.Host, spec.Port)

	h, err := s.Launcher.Start(ctx, spec)
	if errors.Is(err, errors.ErrCanceled) {
		// Interrupted during startup; Start already stopped the process
		s.Out.Info("interrupted, server stopped")
		launchLog.Info("startup interrupted")
		return 0, nil
	}
	if err != nil {
		var startErr *errors.StartupError
		if errors.As(err, &startErr) {
			s.Out.Fail("server failed to start")
			s.Out.Block(startErr.Output)
		}
		return 1, failed("serve", PhaseLaunching, err)
	}
	s.Out.Pass("server running at %s (pid %d)", spec.LocalURL(), h.PID())
	if path := h.LogPath(); path != "" {
		s.Out.Hint("output: %s", path)
	}
	launchLog.Info("application running", "pid", h.PID())

	tunnelLog := logger.WithPhase(string(PhaseTunneling))
	tunnelLog.Info("starting tunnel", "client", s.TunnelClient, "port", spec.Port)
	release := func() error {
		err := s.Launcher.Stop(h)
		if err != nil {
			tunnelLog.Warn("stopping application failed", "error", err.Error())
		}
		return err
	}

	code, err := s.Tunnel.Run(ctx, spec.Port, release)
	stopped := logger.WithPhase(string(PhaseStopped))
	if err != nil {
		s.Out.Warn("tunnel failed: %v", err)
		stopped.Warn("tunnel failed", "error", err.Error())
		if errors.IsFatal(err) {
			return code, failed("serve", PhaseTunneling, err)
		}
		return code, nil
	}
	s.Out.Pass("server stopped")
	stopped.Info("serve stopped", "exit_code", code)
	return code, nil
}
