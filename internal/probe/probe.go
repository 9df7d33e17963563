// Package probe checks that the external tools zerepyctl depends on are
// installed before any lifecycle step touches the filesystem.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
)

// Mode selects which requirements apply.
type Mode string

const (
	ModeInstall Mode = "install"
	ModeServe   Mode = "serve"
)

// Scope declares the modes a requirement applies to.
type Scope int

const (
	ScopeBoth Scope = iota
	ScopeInstall
	ScopeServe
)

// Severity decides what a missing tool means for the run.
type Severity int

const (
	// Fatal requirements abort the run when missing.
	Fatal Severity = iota
	// Warning requirements only degrade functionality.
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "fatal"
}

// Status is the outcome of one requirement check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Requirement describes one external tool.
type Requirement struct {
	// Name identifies the requirement in reports, e.g. "python3" or "ngrok".
	Name string
	// Purpose is a short human description, e.g. "Python runtime".
	Purpose string
	// Command and Args form the detection command; success means present.
	Command string
	Args    []string
	Scope   Scope
	// Severity applies when the tool is missing.
	Severity Severity
}

// AppliesTo reports whether the requirement is checked in mode.
func (r Requirement) AppliesTo(mode Mode) bool {
	switch r.Scope {
	case ScopeInstall:
		return mode == ModeInstall
	case ScopeServe:
		return mode == ModeServe
	default:
		return true
	}
}

func (r Requirement) command() runner.Command {
	return runner.Command{Name: r.Command, Args: r.Args}
}

// CheckResult is the outcome for one requirement.
type CheckResult struct {
	Requirement Requirement
	Status      Status
	// Version is the first line the detection command printed.
	Version string
	// Err is set for warn and fail results.
	Err error
}

// Report collects the results of one probe run.
type Report struct {
	Mode    Mode
	Results []CheckResult
}

// Result returns the result for the named requirement.
func (r *Report) Result(name string) (CheckResult, bool) {
	for _, res := range r.Results {
		if res.Requirement.Name == name {
			return res, true
		}
	}
	return CheckResult{}, false
}

// Available reports whether the named tool was found.
func (r *Report) Available(name string) bool {
	res, ok := r.Result(name)
	return ok && res.Status == StatusPass
}

// Version returns the detected version of the named tool, or "".
func (r *Report) Version(name string) string {
	res, _ := r.Result(name)
	return res.Version
}

// Failed returns the results of missing fatal requirements.
func (r *Report) Failed() []CheckResult {
	return r.filter(StatusFail)
}

// Warnings returns the results of missing warning requirements.
func (r *Report) Warnings() []CheckResult {
	return r.filter(StatusWarn)
}

func (r *Report) filter(status Status) []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res)
		}
	}
	return out
}

// Reporter receives one human-readable line per checked requirement.
// *ui.Printer satisfies it.
type Reporter interface {
	Pass(format string, args ...any)
	Warn(format string, args ...any)
	Fail(format string, args ...any)
}

type nopReporter struct{}

func (nopReporter) Pass(string, ...any) {}
func (nopReporter) Warn(string, ...any) {}
func (nopReporter) Fail(string, ...any) {}

// DefaultTimeout bounds each detection command.
const DefaultTimeout = 10 * time.Second

// Prober runs requirement checks.
type Prober struct {
	runner       runner.Runner
	requirements []Requirement
	reporter     Reporter
	logger       *logging.Logger
	timeout      time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithReporter sets where status lines are printed.
func WithReporter(r Reporter) Option {
	return func(p *Prober) { p.reporter = r }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Prober) { p.logger = l.WithComponent("probe") }
}

// WithTimeout bounds each detection command.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// New creates a Prober for the given requirements.
func New(r runner.Runner, requirements []Requirement, opts ...Option) *Prober {
	p := &Prober{
		runner:       r,
		requirements: requirements,
		reporter:     nopReporter{},
		logger:       logging.NopLogger(),
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultRequirements builds the requirement set from configuration:
// the Python runtime, its package installer and git are fatal in both modes;
// the tunnel client is a serve-only warning and is left out entirely when
// tunnelling is disabled.
func DefaultRequirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: cfg.Tools.Python, Purpose: "Python runtime", Command: cfg.Tools.Python, Args: []string{"--version"}},
		{Name: cfg.Tools.Pip, Purpose: "Python package installer", Command: cfg.Tools.Pip, Args: []string{"--version"}},
		{Name: cfg.Tools.Git, Purpose: "version control", Command: cfg.Tools.Git, Args: []string{"--version"}},
	}
	if cfg.Tunnel.Enabled {
		reqs = append(reqs, Requirement{
			Name:     cfg.Tunnel.Client,
			Purpose:  "public tunnel",
			Command:  cfg.Tunnel.Executable(),
			Args:     []string{"--version"},
			Scope:    ScopeServe,
			Severity: Warning,
		})
	}
	return reqs
}

// Check runs the requirements that apply to mode in order. The first missing
// fatal requirement stops the run with a *errors.ToolError; the report up to
// that point is returned alongside. Missing warning requirements are
// recorded and the run continues.
func (p *Prober) Check(ctx context.Context, mode Mode) (*Report, error) {
	report := &Report{Mode: mode}

	for _, req := range p.requirements {
		if !req.AppliesTo(mode) {
			continue
		}
		res := p.check(ctx, req)
		report.Results = append(report.Results, res)

		if res.Status == StatusFail {
			return report, res.Err
		}
	}

	p.logger.Info("probe complete",
		"mode", string(mode),
		"checked", len(report.Results),
		"warnings", len(report.Warnings()),
	)
	return report, nil
}

// Survey checks every requirement regardless of mode and never stops early.
// It backs the doctor command, which wants the whole picture.
func (p *Prober) Survey(ctx context.Context) *Report {
	report := &Report{}
	for _, req := range p.requirements {
		report.Results = append(report.Results, p.check(ctx, req))
	}
	return report
}

func (p *Prober) check(ctx context.Context, req Requirement) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := req.command()
	res, err := p.runner.Run(ctx, cmd)
	if err == nil {
		version := runner.FirstLine(res.Output)
		p.reporter.Pass("%s: %s", req.Name, versionOrFound(version))
		p.logger.Debug("tool found", "tool", req.Name, "version", version)
		return CheckResult{Requirement: req, Status: StatusPass, Version: version}
	}

	toolErr := errors.NewToolError(req.Name, req.Severity == Fatal, err).WithCommand(cmd.String())
	if req.Severity == Fatal {
		p.reporter.Fail("%s not found (%s is required)", req.Name, req.Purpose)
		p.logger.Error("required tool missing", "tool", req.Name, "error", err.Error())
		return CheckResult{Requirement: req, Status: StatusFail, Err: toolErr}
	}

	p.reporter.Warn("%s not found (%s unavailable)", req.Name, req.Purpose)
	p.logger.Warn("optional tool missing", "tool", req.Name, "error", err.Error())
	return CheckResult{Requirement: req, Status: StatusWarn, Err: toolErr}
}

func versionOrFound(version string) string {
	if version == "" {
		return "found"
	}
	return version
}

// String renders a one-line summary such as "3 passed, 1 warning".
func (r *Report) String() string {
	pass := len(r.filter(StatusPass))
	return fmt.Sprintf("%d passed, %d warning(s), %d failed", pass, len(r.Warnings()), len(r.Failed()))
}
