package lifecycle

import (
	"context"

	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/probe"
	"github.com/zerepy/zerepyctl/internal/source"
	"github.com/zerepy/zerepyctl/internal/ui"
	"github.com/zerepy/zerepyctl/internal/venv"
)

// InstallResult summarises a completed install.
type InstallResult struct {
	Report *probe.Report
	Source source.Result
	Env    venv.Result
}

// Installer runs probing → fetching → provisioning.
type Installer struct {
	Layout Layout
	Remote string

	Probe  Prober
	Source SourceProvisioner
	Env    EnvProvisioner

	Out    *ui.Printer
	Logger *logging.Logger
}

// Run performs the install. Any fatal failure aborts immediately and is
// returned as a *PhaseError naming the phase; a failed pull of an existing
// checkout is reported as a warning and the install continues.
func (in *Installer) Run(ctx context.Context) (*InstallResult, error) {
	logger := in.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	out := in.Out
	res := &InstallResult{}

	phase := PhaseProbing
	logger.WithPhase(string(phase)).Info("checking tools")
	out.Title("Checking tools")
	report, err := in.Probe.Check(ctx, probe.ModeInstall)
	res.Report = report
	if err != nil {
		return res, failed("install", phase, err)
	}

	phase = PhaseFetching
	logger.WithPhase(string(phase)).Info("fetching source", "remote", in.Remote, "dir", in.Layout.Checkout)
	out.Title("Fetching source")
	act := out.Start("fetching %s", in.Remote)
	src, err := in.Source.Ensure(ctx, in.Remote, in.Layout.Checkout)
	act.Stop()
	res.Source = src
	if err != nil {
		return res, failed("install", phase, err)
	}
	switch src.Outcome {
	case source.Cloned:
		out.Pass("cloned %s into %s", in.Remote, src.Dir)
	case source.Updated:
		out.Pass("updated %s", src.Dir)
	case source.UpdateFailed:
		out.Warn("could not update %s, continuing with the existing checkout", src.Dir)
		if src.Warning != nil {
			out.Block(src.Warning.Output)
		}
	}

	phase = PhaseProvisioning
	logger.WithPhase(string(phase)).Info("provisioning environment", "root", src.Dir)
	out.Title("Provisioning environment")
	act = out.Start("installing dependencies into %s", in.Layout.Env.Dir)
	env, err := in.Env.Provision(ctx, src.Dir)
	act.Stop()
	res.Env = env
	if err != nil {
		var provErr *errors.ProvisionError
		if errors.As(err, &provErr) {
			out.Block(provErr.Output)
		}
		return res, failed("install", phase, err)
	}
	if env.Created {
		out.Pass("created environment %s", env.Env.Dir)
	} else {
		out.Pass("reusing environment %s", env.Env.Dir)
	}
	out.Pass("installed dependencies (%s)", env.Policy)

	logger.WithPhase(string(PhaseDone)).Info("install complete",
		"outcome", src.Outcome.String(),
		"policy", env.Policy.String(),
		"env_created", env.Created,
	)
	return res, nil
}
