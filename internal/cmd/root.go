package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zerepy/zerepyctl/internal/config"
)

// Build information, set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// ExitError carries the exit status a command wants the process to end
// with. Err, when set, is printed to stderr by main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return "exit status 1"
	}
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// v holds the configuration of the current invocation. initConfig rebuilds
// it on every Execute so state never leaks between runs.
var v = viper.New()

// configErr is a config file that exists but could not be read.
var configErr error

var rootCmd = &cobra.Command{
	Use:   "zerepyctl",
	Short: "Install and serve the ZerePy agent server",
	Long: `zerepyctl bootstraps and runs the ZerePy server.

'install' checks the host tools, clones or updates the ZerePy source and
provisions its Python virtual environment. 'serve' launches the server and,
when ngrok or cloudflared is installed, exposes it through a public tunnel
until you press Ctrl-C.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so running children are stopped before the process exits.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/zerepyctl/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "working root holding the ZerePy checkout (default is the current directory)")
	rootCmd.PersistentFlags().String("log-level", "", "debug log level: debug, info, warn, error")
}

func initConfig() {
	v = viper.New()
	configErr = nil

	// Set defaults first so they're available even without a config file
	config.SetDefaultsOn(v)

	flags := rootCmd.PersistentFlags()
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("root", flags.Lookup("root"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	bindServeFlags(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
		v.AddConfigPath("$HOME/.config/zerepyctl")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ZEREPYCTL")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ZEREPYCTL_SERVE_PORT for serve.port
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; a broken one is reported by the command
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			configErr = err
		}
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	stderr := cmd.ErrOrStderr()
	if len(args) > 0 {
		fmt.Fprintf(stderr, "unknown command %q for %q\n\n", args[0], cmd.CommandPath())
	}
	fmt.Fprint(stderr, cmd.UsageString())
	return &ExitError{Code: 1}
}
