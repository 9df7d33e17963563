package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zerepy/zerepyctl/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "serve.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	for i, level := range levels {
		levels[i] = strings.ToLower(level)
	}
	return levels
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSource()...)
	errors = append(errors, c.validateTools()...)
	errors = append(errors, c.validateEnv()...)
	errors = append(errors, c.validateServe()...)
	errors = append(errors, c.validateTunnel()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateSource() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Source.Remote) == "" {
		errors = append(errors, ValidationError{
			Field:   "source.remote",
			Value:   c.Source.Remote,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Source.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "source.dir",
			Value:   c.Source.Dir,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	required := []struct {
		field string
		value string
	}{
		{"tools.python", c.Tools.Python},
		{"tools.pip", c.Tools.Pip},
		{"tools.git", c.Tools.Git},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must name an executable",
			})
		}
	}

	return errors
}

func (c *Config) validateEnv() []ValidationError {
	var errors []ValidationError

	// The environment always lives inside the checkout
	if strings.TrimSpace(c.Env.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "env.dir",
			Value:   c.Env.Dir,
			Message: "must not be empty",
		})
	} else if filepath.IsAbs(c.Env.Dir) || strings.HasPrefix(filepath.Clean(c.Env.Dir), "..") {
		errors = append(errors, ValidationError{
			Field:   "env.dir",
			Value:   c.Env.Dir,
			Message: "must be a relative path inside the checkout",
		})
	}

	if len(c.Env.FallbackPackages) == 0 {
		errors = append(errors, ValidationError{
			Field:   "env.fallback_packages",
			Value:   c.Env.FallbackPackages,
			Message: "must list at least one package",
		})
	}

	return errors
}

func (c *Config) validateServe() []ValidationError {
	var errors []ValidationError

	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "serve.port",
			Value:   c.Serve.Port,
			Message: "must be between 1 and 65535",
		})
	}
	if strings.TrimSpace(c.Serve.Host) == "" {
		errors = append(errors, ValidationError{
			Field:   "serve.host",
			Value:   c.Serve.Host,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Serve.Entrypoint) == "" {
		errors = append(errors, ValidationError{
			Field:   "serve.entrypoint",
			Value:   c.Serve.Entrypoint,
			Message: "must not be empty",
		})
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"serve.startup_grace_ms", c.Serve.StartupGraceMs},
		{"serve.stop_timeout_ms", c.Serve.StopTimeoutMs},
		{"serve.health_timeout_ms", c.Serve.HealthTimeoutMs},
		{"serve.log_max_size_mb", c.Serve.LogMaxSizeMB},
		{"serve.log_max_backups", c.Serve.LogMaxBackups},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			errors = append(errors, ValidationError{
				Field:   n.field,
				Value:   n.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Serve.OutputBufferSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "serve.output_buffer_size",
			Value:   c.Serve.OutputBufferSize,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateTunnel() []ValidationError {
	var errors []ValidationError

	if !IsValidTunnelClient(c.Tunnel.Client) {
		errors = append(errors, ValidationError{
			Field:   "tunnel.client",
			Value:   c.Tunnel.Client,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTunnelClients(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
