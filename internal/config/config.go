package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete zerepyctl configuration
type Config struct {
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Tools   ToolsConfig   `mapstructure:"tools" yaml:"tools"`
	Env     EnvConfig     `mapstructure:"env" yaml:"env"`
	Serve   ServeConfig   `mapstructure:"serve" yaml:"serve"`
	Tunnel  TunnelConfig  `mapstructure:"tunnel" yaml:"tunnel"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig controls where the application source comes from
type SourceConfig struct {
	// Remote is the git URL cloned on first install
	Remote string `mapstructure:"remote" yaml:"remote"`
	// Dir is the checkout directory, relative to the working root unless absolute
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ToolsConfig names the external executables the launcher depends on
type ToolsConfig struct {
	// Python is the interpreter used to create the virtual environment
	Python string `mapstructure:"python" yaml:"python"`
	// Pip is the host package installer checked during probing
	Pip string `mapstructure:"pip" yaml:"pip"`
	// Git is the version-control client
	Git string `mapstructure:"git" yaml:"git"`
	// LockTool is the dependency-lock tool used when no manifest exists (default: "poetry")
	LockTool string `mapstructure:"lock_tool" yaml:"lock_tool"`
}

// EnvConfig controls the isolated Python environment
type EnvConfig struct {
	// Dir is the environment directory relative to the checkout (default: "venv")
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Manifest is the pinned requirements file relative to the checkout
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
	// ServerPackages are installed after the manifest for server/streaming mode
	ServerPackages []string `mapstructure:"server_packages" yaml:"server_packages"`
	// FallbackPackages are installed when neither a manifest nor the lock tool is available
	FallbackPackages []string `mapstructure:"fallback_packages" yaml:"fallback_packages"`
}

// ServeConfig controls how the application is launched
type ServeConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Entrypoint string `mapstructure:"entrypoint" yaml:"entrypoint"`
	// StartupGraceMs is the delay before the single liveness check in supervised mode
	StartupGraceMs int `mapstructure:"startup_grace_ms" yaml:"startup_grace_ms"`
	// StopTimeoutMs is how long to wait after SIGTERM before SIGKILL
	StopTimeoutMs int `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	// HealthTimeoutMs enables an HTTP status probe after the liveness check (0 = disabled)
	HealthTimeoutMs int `mapstructure:"health_timeout_ms" yaml:"health_timeout_ms"`
	// OutputBufferSize is how many bytes of server output are kept for error reports
	OutputBufferSize int `mapstructure:"output_buffer_size" yaml:"output_buffer_size"`
	// LogFile receives the server's output in supervised mode.
	// If empty, defaults to server.log in the state directory.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	// LogMaxSizeMB rotates the server log past this size (0 = never rotate)
	LogMaxSizeMB int `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	// LogMaxBackups is how many rotated server logs are kept
	LogMaxBackups int `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

// TunnelConfig controls the optional public tunnel
type TunnelConfig struct {
	// Enabled allows serve to start a tunnel when the client is installed (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Client selects the tunnel flavour: "ngrok" or "cloudflared"
	Client string `mapstructure:"client" yaml:"client"`
	// Command overrides the executable name or path (default: same as Client)
	Command string `mapstructure:"command" yaml:"command"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether the JSON debug log is written (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where zerepyctl.log is written (default: the state directory)
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Remote: "https://github.com/blorm-network/ZerePy.git",
			Dir:    "ZerePy",
		},
		Tools: ToolsConfig{
			Python:   "python3",
			Pip:      "pip3",
			Git:      "git",
			LockTool: "poetry",
		},
		Env: EnvConfig{
			Dir:              "venv",
			Manifest:         "requirements.txt",
			ServerPackages:   []string{"fastapi", "uvicorn", "sse-starlette"},
			FallbackPackages: []string{"fastapi", "uvicorn", "pydantic", "python-dotenv", "requests"},
		},
		Serve: ServeConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			Entrypoint:       "main.py",
			StartupGraceMs:   5000,
			StopTimeoutMs:    5000,
			HealthTimeoutMs:  0,     // Disabled: the single liveness check is the contract
			OutputBufferSize: 65536, // 64KB
			LogFile:          "",
			LogMaxSizeMB:     10,
			LogMaxBackups:    3,
		},
		Tunnel: TunnelConfig{
			Enabled: true,
			Client:  TunnelNgrok,
			Command: "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Tunnel client names
const (
	TunnelNgrok       = "ngrok"
	TunnelCloudflared = "cloudflared"
)

// StartupGrace returns the liveness-check delay as a time.Duration
func (c *ServeConfig) StartupGrace() time.Duration {
	return time.Duration(c.StartupGraceMs) * time.Millisecond
}

// StopTimeout returns the SIGTERM-to-SIGKILL delay as a time.Duration
func (c *ServeConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// HealthTimeout returns the HTTP probe timeout as a time.Duration (0 means disabled)
func (c *ServeConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutMs) * time.Millisecond
}

// ResolveLogFile returns the server output log path.
func (c *ServeConfig) ResolveLogFile() string {
	if c.LogFile == "" {
		return filepath.Join(StateDir(), "server.log")
	}
	return expandHome(c.LogFile)
}

// Executable returns the tunnel command to run.
func (c *TunnelConfig) Executable() string {
	if c.Command != "" {
		return c.Command
	}
	return c.Client
}

// ResolveDir returns the debug log directory.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return StateDir()
	}
	return expandHome(c.Dir)
}

// ResolveSourceDir returns the absolute checkout path for the given working root.
// If Dir is relative, it's resolved relative to root.
func (c *SourceConfig) ResolveSourceDir(root string) string {
	path := expandHome(c.Dir)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

// expandHome expands a leading ~ to the user's home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}

// SetDefaultsOn registers default values with the given viper instance
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Source defaults
	v.SetDefault("source.remote", defaults.Source.Remote)
	v.SetDefault("source.dir", defaults.Source.Dir)

	// Tool defaults
	v.SetDefault("tools.python", defaults.Tools.Python)
	v.SetDefault("tools.pip", defaults.Tools.Pip)
	v.SetDefault("tools.git", defaults.Tools.Git)
	v.SetDefault("tools.lock_tool", defaults.Tools.LockTool)

	// Environment defaults
	v.SetDefault("env.dir", defaults.Env.Dir)
	v.SetDefault("env.manifest", defaults.Env.Manifest)
	v.SetDefault("env.server_packages", defaults.Env.ServerPackages)
	v.SetDefault("env.fallback_packages", defaults.Env.FallbackPackages)

	// Serve defaults
	v.SetDefault("serve.host", defaults.Serve.Host)
	v.SetDefault("serve.port", defaults.Serve.Port)
	v.SetDefault("serve.entrypoint", defaults.Serve.Entrypoint)
	v.SetDefault("serve.startup_grace_ms", defaults.Serve.StartupGraceMs)
	v.SetDefault("serve.stop_timeout_ms", defaults.Serve.StopTimeoutMs)
	v.SetDefault("serve.health_timeout_ms", defaults.Serve.HealthTimeoutMs)
	v.SetDefault("serve.output_buffer_size", defaults.Serve.OutputBufferSize)
	v.SetDefault("serve.log_file", defaults.Serve.LogFile)
	v.SetDefault("serve.log_max_size_mb", defaults.Serve.LogMaxSizeMB)
	v.SetDefault("serve.log_max_backups", defaults.Serve.LogMaxBackups)

	// Tunnel defaults
	v.SetDefault("tunnel.enabled", defaults.Tunnel.Enabled)
	v.SetDefault("tunnel.client", defaults.Tunnel.Client)
	v.SetDefault("tunnel.command", defaults.Tunnel.Command)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// LoadFrom reads the configuration from the given viper instance and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "zerepyctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zerepyctl"
	}
	return filepath.Join(home, ".config", "zerepyctl")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory for logs and server output
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "zerepyctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".zerepyctl", "state")
	}
	return filepath.Join(home, ".local", "state", "zerepyctl")
}

// ValidTunnelClients returns the list of supported tunnel clients
func ValidTunnelClients() []string {
	return []string{TunnelNgrok, TunnelCloudflared}
}

// IsValidTunnelClient checks if the given client is supported
func IsValidTunnelClient(client string) bool {
	for _, valid := range ValidTunnelClients() {
		if client == valid {
			return true
		}
	}
	return false
}
