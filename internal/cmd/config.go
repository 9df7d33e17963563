package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zerepy/zerepyctl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create zerepyctl configuration",
	Long: `View or create zerepyctl configuration.

Without arguments, displays the effective configuration.
Use subcommands to create a config file or locate it.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/zerepyctl/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("failed to read config file: %w", configErr)}
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	out := cmd.OutOrStdout()
	// Show where config is being read from
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// configHeader is written above the generated defaults by config init.
const configHeader = `# zerepyctl configuration
#
# Every key can also be set with an environment variable, e.g.
# ZEREPYCTL_SERVE_PORT=9000 for serve.port.
#
# source:  where the ZerePy checkout comes from and where it lives
# tools:   executables for python, pip, git and the lock tool (poetry)
# env:     the virtual environment and the packages installed into it
# serve:   host, port, startup grace, stop timeout and optional health probe
# tunnel:  ngrok or cloudflared; set enabled: false to always run in the foreground
# logging: the JSON debug log under ~/.local/state/zerepyctl
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()
	force, _ := cmd.Flags().GetBool("force")

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil && !force {
		return &ExitError{Code: 1, Err: fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", configFile)}
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to render default configuration: %w", err)
	}
	if err := os.WriteFile(configFile, append([]byte(configHeader+"\n"), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize zerepyctl's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/zerepyctl/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: ZEREPYCTL_* (e.g., ZEREPYCTL_SERVE_PORT)")
	fmt.Fprintf(out, "State directory: %s\n", config.StateDir())
	return nil
}
