package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// validateField runs Validate on a mutated default config and reports
// whether an error was produced for field.
func validateField(mutate func(*Config), field string) (bool, []ValidationError) {
	cfg := Default()
	mutate(cfg)
	errs := cfg.Validate()
	for _, e := range errs {
		if e.Field == field {
			return true, errs
		}
	}
	return false, errs
}

func TestConfig_Validate_Source(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"empty remote", func(c *Config) { c.Source.Remote = "" }, "source.remote", true},
		{"blank remote", func(c *Config) { c.Source.Remote = "   " }, "source.remote", true},
		{"empty dir", func(c *Config) { c.Source.Dir = "" }, "source.dir", true},
		{"absolute dir", func(c *Config) { c.Source.Dir = "/srv/zerepy" }, "source.dir", false},
		{"ssh remote", func(c *Config) { c.Source.Remote = "git@github.com:me/ZerePy.git" }, "source.remote", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := validateField(tt.mutate, tt.field)
			if got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v (errors: %v)", tt.field, got, tt.wantErr, errs)
			}
		})
	}
}

func TestConfig_Validate_Tools(t *testing.T) {
	for _, field := range []string{"tools.python", "tools.pip", "tools.git"} {
		t.Run(field, func(t *testing.T) {
			got, errs := validateField(func(c *Config) {
				switch field {
				case "tools.python":
					c.Tools.Python = ""
				case "tools.pip":
					c.Tools.Pip = ""
				case "tools.git":
					c.Tools.Git = ""
				}
			}, field)
			if !got {
				t.Errorf("expected error on %s, got %v", field, errs)
			}
		})
	}

	// An empty lock tool disables policy (b) and is allowed
	if got, errs := validateField(func(c *Config) { c.Tools.LockTool = "" }, "tools.lock_tool"); got {
		t.Errorf("empty lock tool should be valid, got %v", errs)
	}
}

func TestConfig_Validate_Env(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"default dir", func(c *Config) {}, "env.dir", false},
		{"nested dir", func(c *Config) { c.Env.Dir = ".venvs/zerepy" }, "env.dir", false},
		{"empty dir", func(c *Config) { c.Env.Dir = "" }, "env.dir", true},
		{"absolute dir", func(c *Config) { c.Env.Dir = "/opt/venv" }, "env.dir", true},
		{"escaping dir", func(c *Config) { c.Env.Dir = "../venv" }, "env.dir", true},
		{"no fallback packages", func(c *Config) { c.Env.FallbackPackages = nil }, "env.fallback_packages", true},
		{"no server packages", func(c *Config) { c.Env.ServerPackages = nil }, "env.server_packages", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := validateField(tt.mutate, tt.field)
			if got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v (errors: %v)", tt.field, got, tt.wantErr, errs)
			}
		})
	}
}

func TestConfig_Validate_Serve(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"port zero", func(c *Config) { c.Serve.Port = 0 }, "serve.port", true},
		{"port too large", func(c *Config) { c.Serve.Port = 65536 }, "serve.port", true},
		{"port min", func(c *Config) { c.Serve.Port = 1 }, "serve.port", false},
		{"port max", func(c *Config) { c.Serve.Port = 65535 }, "serve.port", false},
		{"empty host", func(c *Config) { c.Serve.Host = "" }, "serve.host", true},
		{"empty entrypoint", func(c *Config) { c.Serve.Entrypoint = "" }, "serve.entrypoint", true},
		{"negative grace", func(c *Config) { c.Serve.StartupGraceMs = -1 }, "serve.startup_grace_ms", true},
		{"zero grace", func(c *Config) { c.Serve.StartupGraceMs = 0 }, "serve.startup_grace_ms", false},
		{"negative stop timeout", func(c *Config) { c.Serve.StopTimeoutMs = -5 }, "serve.stop_timeout_ms", true},
		{"negative health timeout", func(c *Config) { c.Serve.HealthTimeoutMs = -1 }, "serve.health_timeout_ms", true},
		{"zero buffer", func(c *Config) { c.Serve.OutputBufferSize = 0 }, "serve.output_buffer_size", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := validateField(tt.mutate, tt.field)
			if got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v (errors: %v)", tt.field, got, tt.wantErr, errs)
			}
		})
	}
}

func TestConfig_Validate_Tunnel(t *testing.T) {
	tests := []struct {
		client  string
		wantErr bool
	}{
		{"ngrok", false},
		{"cloudflared", false},
		{"", true},
		{"bore", true},
		{"NGROK", true},
	}

	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			got, errs := validateField(func(c *Config) { c.Tunnel.Client = tt.client }, "tunnel.client")
			if got != tt.wantErr {
				t.Errorf("Validate(client=%q) error = %v, want %v (errors: %v)", tt.client, got, tt.wantErr, errs)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"debug level", func(c *Config) { c.Logging.Level = "debug" }, "logging.level", false},
		{"uppercase level", func(c *Config) { c.Logging.Level = "WARN" }, "logging.level", false},
		{"empty level", func(c *Config) { c.Logging.Level = "" }, "logging.level", false},
		{"unknown level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level", true},
		{"negative size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb", true},
		{"zero size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb", false},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := validateField(tt.mutate, tt.field)
			if got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v (errors: %v)", tt.field, got, tt.wantErr, errs)
			}
		})
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}

	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() returned %d levels, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Serve.Port = -1
	cfg.Tunnel.Client = "bogus"
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}

	msg := ValidationErrors(errs).Error()
	if !strings.Contains(msg, "3 validation errors") {
		t.Errorf("combined message = %q", msg)
	}
}
