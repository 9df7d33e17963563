// Package source obtains and updates the application checkout.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
)

// Outcome is what Ensure did to the checkout.
type Outcome int

const (
	// Cloned means the directory did not exist and was cloned.
	Cloned Outcome = iota
	// Updated means an existing checkout was pulled.
	Updated
	// UpdateFailed means an existing checkout could not be pulled; the
	// checkout is left as it was and Result.Warning says why.
	UpdateFailed
)

func (o Outcome) String() string {
	switch o {
	case Cloned:
		return "cloned"
	case Updated:
		return "updated"
	case UpdateFailed:
		return "update failed"
	default:
		return "unknown"
	}
}

// Result describes the checkout after Ensure.
type Result struct {
	// Dir is the absolute checkout path; later steps use it as their root.
	Dir     string
	Remote  string
	Outcome Outcome
	// Warning is the non-fatal pull failure for UpdateFailed.
	Warning *errors.FetchError
}

// Provisioner clones or pulls the application source with git.
type Provisioner struct {
	runner runner.Runner
	git    string
	logger *logging.Logger
}

// New creates a Provisioner that runs the git executable named git.
func New(r runner.Runner, git string, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Provisioner{runner: r, git: git, logger: logger.WithComponent("source")}
}

// Ensure makes dir a checkout of remote. A missing dir is cloned and a clone
// failure is fatal. An existing directory is pulled in place; a pull failure
// is downgraded to a warning so installation can continue with the code that
// is already there. Partial clones are left on disk for inspection.
func (p *Provisioner) Ensure(ctx context.Context, remote, dir string) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, errors.NewFetchError("cannot resolve checkout path", err).WithDir(dir)
	}
	res := Result{Dir: abs, Remote: remote}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p.clone(ctx, res)
	case err != nil:
		return res, errors.NewFetchError("cannot inspect checkout path", err).WithDir(abs)
	case !info.IsDir():
		return res, errors.NewFetchError("checkout path exists but is not a directory", errors.ErrNotDirectory).
			WithDir(abs)
	}

	return p.pull(ctx, res), nil
}

func (p *Provisioner) clone(ctx context.Context, res Result) (Result, error) {
	cmd := runner.Command{
		Name: p.git,
		Args: []string{"clone", res.Remote, res.Dir},
		Dir:  filepath.Dir(res.Dir),
	}
	p.logger.Info("cloning source", "remote", res.Remote, "dir", res.Dir)

	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.logger.Error("clone failed", "remote", res.Remote, "exit_code", out.ExitCode, "error", err.Error())
		return res, errors.NewFetchError("git clone failed", fmt.Errorf("%w: %v", errors.ErrCloneFailed, err)).
			WithRemote(res.Remote).
			WithDir(res.Dir).
			WithOutput(out.Output)
	}

	res.Outcome = Cloned
	return res, nil
}

func (p *Provisioner) pull(ctx context.Context, res Result) Result {
	// The checkout directory is the child's working directory; ours never changes.
	cmd := runner.Command{Name: p.git, Args: []string{"pull"}, Dir: res.Dir}
	p.logger.Info("updating source", "dir", res.Dir)

	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.logger.Warn("pull failed, keeping existing checkout", "dir", res.Dir, "error", err.Error())
		res.Outcome = UpdateFailed
		res.Warning = errors.NewFetchError("git pull failed", fmt.Errorf("%w: %v", errors.ErrPullFailed, err)).
			WithDir(res.Dir).
			WithOutput(out.Output).
			AsWarning()
		return res
	}

	res.Outcome = Updated
	return res
}

// Present reports whether dir exists and is a directory.
func Present(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
