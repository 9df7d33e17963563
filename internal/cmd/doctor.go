package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerepy/zerepyctl/internal/source"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tools and installation state",
	Long: `Check every tool zerepyctl uses and whether ZerePy is installed.

Unlike install and serve, doctor does not stop at the first missing tool.
It exits with status 1 when a required tool is missing.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, "doctor")
	if err != nil {
		return err
	}
	defer s.close()

	s.out.Title("Tools")
	report := s.prober().Survey(cmd.Context())

	s.out.Title("Installation")
	s.out.KeyValue("root", s.layout.Root)
	if used := v.ConfigFileUsed(); used != "" {
		s.out.KeyValue("config", used)
	} else {
		s.out.KeyValue("config", "(defaults)")
	}
	if source.Present(s.layout.Checkout) {
		s.out.Pass("source: %s", s.layout.Checkout)
	} else {
		s.out.Warn("source: %s not found", s.layout.Checkout)
	}
	if s.layout.Env.Exists() {
		s.out.Pass("environment: %s", s.layout.Env.Dir)
	} else {
		s.out.Warn("environment: %s not found", s.layout.Env.Dir)
	}
	if !s.layout.Installed() {
		s.out.Hint("run 'zerepyctl install' first")
	}

	fmt.Fprintln(s.out.Writer())
	s.out.Info("%s", report)
	s.logger.Info("doctor complete", "summary", report.String())

	if failed := report.Failed(); len(failed) > 0 {
		return s.fail(1, fmt.Errorf("%d required tool(s) missing", len(failed)))
	}
	return nil
}
