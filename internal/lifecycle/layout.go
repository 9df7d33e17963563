// Package lifecycle sequences the install and serve operations over the
// probe, source, venv, supervisor and tunnel components.
//
// Neither operation persists intermediate state: install is idempotent and
// serve re-checks its preconditions on the filesystem every time.
package lifecycle

import (
	"context"
	"path/filepath"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/probe"
	"github.com/zerepy/zerepyctl/internal/source"
	"github.com/zerepy/zerepyctl/internal/supervisor"
	"github.com/zerepy/zerepyctl/internal/venv"
)

// Layout is the set of directories an operation works on. It is threaded
// through every call; the launcher never changes its working directory.
type Layout struct {
	// Root is the absolute working root.
	Root string
	// Checkout is the absolute source checkout directory.
	Checkout string
	// Env is the virtual environment inside the checkout.
	Env venv.Environment
}

// NewLayout resolves the layout for root from configuration. A relative
// root is made absolute against the current directory.
func NewLayout(root string, cfg *config.Config) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, err
	}
	checkout := cfg.Source.ResolveSourceDir(abs)
	return Layout{
		Root:     abs,
		Checkout: checkout,
		Env:      venv.Locate(checkout, cfg.Env.Dir),
	}, nil
}

// Installed reports whether both the checkout and the environment exist.
func (l Layout) Installed() bool {
	return source.Present(l.Checkout) && l.Env.Exists()
}

// Prober checks the host tooling.
type Prober interface {
	Check(ctx context.Context, mode probe.Mode) (*probe.Report, error)
}

// SourceProvisioner clones or updates the checkout.
type SourceProvisioner interface {
	Ensure(ctx context.Context, remote, dir string) (source.Result, error)
}

// EnvProvisioner creates the environment and installs dependencies.
type EnvProvisioner interface {
	Provision(ctx context.Context, root string) (venv.Result, error)
}

// Launcher runs the application.
type Launcher interface {
	RunDirect(ctx context.Context, spec supervisor.AppSpec) (int, error)
	Start(ctx context.Context, spec supervisor.AppSpec) (*supervisor.Handle, error)
	Stop(h *supervisor.Handle) error
}

// Tunneler exposes a port and releases the application when it returns.
type Tunneler interface {
	Run(ctx context.Context, port int, release func() error) (int, error)
}
