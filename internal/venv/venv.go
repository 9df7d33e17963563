// Package venv provisions the isolated Python environment the application
// runs in and installs its dependencies.
package venv

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
)

// Policy is the dependency installation strategy that was applied.
type Policy int

const (
	// PolicyManifest installs the pinned manifest, then the server packages.
	PolicyManifest Policy = iota
	// PolicyLockTool delegates to the dependency-lock tool.
	PolicyLockTool
	// PolicyFallback installs a minimal package set.
	PolicyFallback
)

func (p Policy) String() string {
	switch p {
	case PolicyManifest:
		return "manifest"
	case PolicyLockTool:
		return "lock-tool"
	case PolicyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Options controls environment creation and the install policy.
type Options struct {
	// Python creates the environment (python -m venv).
	Python string
	// Dir is the environment directory relative to the checkout.
	Dir string
	// Manifest is the pinned requirements file relative to the checkout.
	Manifest string
	// LockTool is used when no manifest exists. Empty disables that policy.
	LockTool string
	// ServerPackages follow the manifest install.
	ServerPackages []string
	// FallbackPackages are installed when no other policy applies.
	FallbackPackages []string
}

// OptionsFromConfig builds Options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Python:           cfg.Tools.Python,
		Dir:              cfg.Env.Dir,
		Manifest:         cfg.Env.Manifest,
		LockTool:         cfg.Tools.LockTool,
		ServerPackages:   slices.Clone(cfg.Env.ServerPackages),
		FallbackPackages: slices.Clone(cfg.Env.FallbackPackages),
	}
}

// Result describes the provisioned environment.
type Result struct {
	Env Environment
	// Created is true when the environment was created by this call.
	Created bool
	Policy  Policy
	// Manifest is the absolute manifest path for PolicyManifest.
	Manifest string
}

// Provisioner creates environments and installs dependencies.
type Provisioner struct {
	runner   runner.Runner
	opts     Options
	logger   *logging.Logger
	lookPath func(string) (string, error)
	environ  func() []string
}

// New creates a Provisioner.
func New(r runner.Runner, opts Options, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Provisioner{
		runner:   r,
		opts:     opts,
		logger:   logger.WithComponent("venv"),
		lookPath: runner.LookPath,
		environ:  os.Environ,
	}
}

// Environment returns the environment location for the checkout at root.
func (p *Provisioner) Environment(root string) Environment {
	return Locate(root, p.opts.Dir)
}

// SelectPolicy decides how dependencies for the checkout at root are
// installed: a manifest wins, then the lock tool if it is on PATH, then the
// fallback set.
func (p *Provisioner) SelectPolicy(root string) (Policy, string) {
	if p.opts.Manifest != "" {
		manifest := filepath.Join(root, p.opts.Manifest)
		if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
			return PolicyManifest, manifest
		}
	}
	if p.opts.LockTool != "" {
		if _, err := p.lookPath(p.opts.LockTool); err == nil {
			return PolicyLockTool, ""
		}
	}
	return PolicyFallback, ""
}

// Provision makes sure the checkout at root has an environment and installs
// the application's dependencies into it. The environment is activated only
// for the commands run here. Every failure is a fatal *errors.ProvisionError
// naming the step; nothing is retried.
func (p *Provisioner) Provision(ctx context.Context, root string) (Result, error) {
	env := p.Environment(root)
	res := Result{Env: env}

	if !env.Exists() {
		if err := p.create(ctx, env); err != nil {
			return res, err
		}
		res.Created = true
	} else {
		p.logger.Info("reusing environment", "env", env.Dir)
	}

	act := env.Activate(p.environ())
	defer act.Deactivate()

	res.Policy, res.Manifest = p.SelectPolicy(root)
	p.logger.Info("installing dependencies", "policy", res.Policy.String(), "env", env.Dir)

	var err error
	switch res.Policy {
	case PolicyManifest:
		err = p.installManifest(ctx, act, res.Manifest)
	case PolicyLockTool:
		err = p.run(ctx, act, "lock tool install", runner.Command{Name: p.opts.LockTool, Args: []string{"install"}})
	default:
		err = p.pipInstall(ctx, act, "install fallback packages", p.opts.FallbackPackages)
	}
	return res, err
}

func (p *Provisioner) create(ctx context.Context, env Environment) error {
	if info, err := os.Stat(env.Root); err != nil || !info.IsDir() {
		cause := err
		if cause == nil {
			cause = fs.ErrInvalid
		}
		return errors.NewProvisionError("checkout directory is missing", cause).
			WithEnvDir(env.Dir).
			WithAction("create environment")
	}

	p.logger.Info("creating environment", "env", env.Dir)
	cmd := runner.Command{Name: p.opts.Python, Args: []string{"-m", "venv", env.Dir}, Dir: env.Root}
	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.logger.Error("environment creation failed", "env", env.Dir, "error", err.Error())
		return errors.NewProvisionError("could not create virtual environment", fmt.Errorf("%w: %w", errors.ErrEnvCreateFailed, err)).
			WithEnvDir(env.Dir).
			WithAction("create environment").
			WithOutput(out.Output)
	}
	return nil
}

func (p *Provisioner) installManifest(ctx context.Context, act *Activation, manifest string) error {
	py := act.Environment().Python()
	cmd := runner.Command{Name: py, Args: []string{"-m", "pip", "install", "-r", manifest}}
	if err := p.run(ctx, act, "install requirements", cmd); err != nil {
		return err
	}
	return p.pipInstall(ctx, act, "install server packages", p.opts.ServerPackages)
}

func (p *Provisioner) pipInstall(ctx context.Context, act *Activation, action string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	py := act.Environment().Python()
	args := append([]string{"-m", "pip", "install"}, packages...)
	return p.run(ctx, act, action, runner.Command{Name: py, Args: args})
}

// run executes cmd inside the checkout with the activated environment.
func (p *Provisioner) run(ctx context.Context, act *Activation, action string, cmd runner.Command) error {
	env := act.Environment()
	cmd.Dir = env.Root
	cmd.Env = act.Env()

	p.logger.Debug("running install step", "action", action, "command", cmd.String())
	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.logger.Error("install step failed", "action", action, "exit_code", out.ExitCode, "error", err.Error())
		return errors.NewProvisionError(action+" failed", fmt.Errorf("%w: %w", errors.ErrInstallFailed, err)).
			WithEnvDir(env.Dir).
			WithAction(action).
			WithOutput(out.Output)
	}
	return nil
}
