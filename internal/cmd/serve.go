package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zerepy/zerepyctl/internal/lifecycle"
	"github.com/zerepy/zerepyctl/internal/supervisor"
	"github.com/zerepy/zerepyctl/internal/tunnel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ZerePy server, behind a tunnel when available",
	Long: `Launch the ZerePy server from the environment created by 'install'.

If the configured tunnel client (ngrok by default) is installed, the server
runs in the background and the tunnel runs in the foreground; stopping the
tunnel with Ctrl-C stops the server too. Otherwise the server runs in the
foreground and its exit code becomes zerepyctl's.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "address the server binds to (default 0.0.0.0)")
	serveCmd.Flags().Int("port", 0, "port the server listens on (default 8000)")
	serveCmd.Flags().Bool("no-tunnel", false, "run the server in the foreground without a tunnel")
}

// bindServeFlags binds the serve flags to their configuration keys.
func bindServeFlags(v *viper.Viper) {
	flags := serveCmd.Flags()
	_ = v.BindPFlag("serve.host", flags.Lookup("host"))
	_ = v.BindPFlag("serve.port", flags.Lookup("port"))
	_ = v.BindPFlag("no_tunnel", flags.Lookup("no-tunnel"))
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, "serve")
	if err != nil {
		return err
	}
	defer s.close()

	l, err := s.acquireLock("serve")
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	cfg := s.cfg
	if v.GetBool("no_tunnel") {
		cfg.Tunnel.Enabled = false
	}
	tunnelClient := ""
	if cfg.Tunnel.Enabled {
		tunnelClient = cfg.Tunnel.Client
	}

	opts := supervisor.OptionsFromConfig(&cfg.Serve)
	opts.Stdin, opts.Stdout, opts.Stderr = cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()

	srv := &lifecycle.Server{
		Layout:       s.layout,
		Serve:        cfg.Serve,
		TunnelClient: tunnelClient,
		Probe:        s.prober(),
		Launcher:     supervisor.New(s.runner, opts, s.logger),
		Tunnel: tunnel.New(s.runner, tunnel.ClientFromConfig(&cfg.Tunnel),
			tunnel.WithStreams(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
			tunnel.WithLogger(s.logger),
		),
		Out:    s.out,
		Logger: s.logger,
	}

	code, err := srv.Run(cmd.Context())
	if err != nil {
		return s.fail(code, err)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
