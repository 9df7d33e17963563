package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zerepy/zerepyctl/internal/lifecycle"
	"github.com/zerepy/zerepyctl/internal/source"
	"github.com/zerepy/zerepyctl/internal/venv"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Fetch ZerePy and provision its Python environment",
	Long: `Check the required tools, clone the ZerePy source (or pull it if it is
already there) and create its virtual environment with all dependencies.

Running install again updates the checkout and reuses the environment.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, "install")
	if err != nil {
		return err
	}
	defer s.close()

	l, err := s.acquireLock("install")
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	in := &lifecycle.Installer{
		Layout: s.layout,
		Remote: s.cfg.Source.Remote,
		Probe:  s.prober(),
		Source: source.New(s.runner, s.cfg.Tools.Git, s.logger),
		Env:    venv.New(s.runner, venv.OptionsFromConfig(s.cfg), s.logger),
		Out:    s.out,
		Logger: s.logger,
	}

	if _, err := in.Run(cmd.Context()); err != nil {
		return s.fail(0, err)
	}

	s.out.Pass("install complete")
	s.out.Hint("run 'zerepyctl serve' to start the server")
	return nil
}
