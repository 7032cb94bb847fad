// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:8080"

transports:
  request_timeout_default: "45s"
  max_request_bytes: 2097152
  ping_interval: "20s"
  cors_allow_origins: ["https://example.com"]

limits:
  global: 100
  per_connection_http: 1
  per_connection_other: 16
  per_tool_default: 8
  per_tool:
    slow_tool: 2
  queue_depth: 64
  hard_kill_multiplier: 3

middleware:
  enabled: ["logging", "auth"]
  rate_limit:
    requests_per_second: 10
    burst: 20

auth:
  provider: "jwt"
  jwt_secret: "0123456789abcdef0123456789abcdef"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "0.0.0.0:8080")
	}
	if cfg.Transports.RequestTimeoutDefault != 45*time.Second {
		t.Errorf("RequestTimeoutDefault = %v, want 45s", cfg.Transports.RequestTimeoutDefault)
	}
	if cfg.Transports.MaxRequestBytes != 2097152 {
		t.Errorf("MaxRequestBytes = %d, want 2097152", cfg.Transports.MaxRequestBytes)
	}
	if cfg.Transports.PingInterval != 20*time.Second {
		t.Errorf("PingInterval = %v, want 20s", cfg.Transports.PingInterval)
	}
	if len(cfg.Transports.CORSAllowOrigins) != 1 || cfg.Transports.CORSAllowOrigins[0] != "https://example.com" {
		t.Errorf("CORSAllowOrigins = %v, want [https://example.com]", cfg.Transports.CORSAllowOrigins)
	}

	if cfg.Limits.Global != 100 {
		t.Errorf("Limits.Global = %d, want 100", cfg.Limits.Global)
	}
	if cfg.Limits.PerTool["slow_tool"] != 2 {
		t.Errorf("Limits.PerTool[slow_tool] = %d, want 2", cfg.Limits.PerTool["slow_tool"])
	}
	if cfg.Limits.HardKillMultiplier != 3 {
		t.Errorf("Limits.HardKillMultiplier = %d, want 3", cfg.Limits.HardKillMultiplier)
	}

	if len(cfg.Middleware.Enabled) != 2 {
		t.Errorf("Middleware.Enabled = %v, want 2 entries", cfg.Middleware.Enabled)
	}
	if cfg.Middleware.RateLimit.Burst != 20 {
		t.Errorf("RateLimit.Burst = %d, want 20", cfg.Middleware.RateLimit.Burst)
	}

	if cfg.Auth.Provider != "jwt" {
		t.Errorf("Auth.Provider = %q, want jwt", cfg.Auth.Provider)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  provider: "none"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("default Server.Addr = %q, want 0.0.0.0:8080", cfg.Server.Addr)
	}
	if cfg.Transports.RequestTimeoutDefault != 30*time.Second {
		t.Errorf("default RequestTimeoutDefault = %v, want 30s", cfg.Transports.RequestTimeoutDefault)
	}
	if cfg.Transports.MaxRequestBytes != 1<<20 {
		t.Errorf("default MaxRequestBytes = %d, want %d", cfg.Transports.MaxRequestBytes, 1<<20)
	}
	if cfg.Limits.Global != 200 {
		t.Errorf("default Limits.Global = %d, want 200", cfg.Limits.Global)
	}
	if cfg.Limits.QueueDepth != 256 {
		t.Errorf("default Limits.QueueDepth = %d, want 256", cfg.Limits.QueueDepth)
	}
	if cfg.Limits.HardKillMultiplier != 2 {
		t.Errorf("default HardKillMultiplier = %d, want 2", cfg.Limits.HardKillMultiplier)
	}
	if len(cfg.Middleware.Enabled) != 5 {
		t.Errorf("default Middleware.Enabled = %v, want 5 entries", cfg.Middleware.Enabled)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("default Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	path := writeConfig(t, `
auth:
  provider: "jwt"
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Auth.JWTSecret = %q, want env-expanded value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_JWTSecretEnvOverride(t *testing.T) {
	t.Setenv("MCP_GATEWAY_JWT_SECRET", "fedcba9876543210fedcba9876543210")

	path := writeConfig(t, `
auth:
  provider: "jwt"
  jwt_secret: "this-value-should-be-overridden-xx"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "fedcba9876543210fedcba9876543210" {
		t.Errorf("Auth.JWTSecret = %q, want env override", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr "missing colon"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
transports:
  request_timeout_default: "not-a-duration"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantErrSubstr string
	}{
		{
			name:          "missing server addr",
			cfg:           Config{Logging: LoggingConfig{Level: "info"}, Limits: validLimits(), Auth: AuthConfig{Provider: "none"}, Transports: TransportsConfig{MaxRequestBytes: 1024}},
			wantErrSubstr: "server.addr is required",
		},
		{
			name:          "bad auth provider",
			cfg:           Config{Server: ServerConfig{Addr: "x"}, Transports: TransportsConfig{MaxRequestBytes: 1024}, Limits: validLimits(), Auth: AuthConfig{Provider: "oauth"}, Logging: LoggingConfig{Level: "info"}},
			wantErrSubstr: "auth.provider",
		},
		{
			name:          "jwt provider requires long secret",
			cfg:           Config{Server: ServerConfig{Addr: "x"}, Transports: TransportsConfig{MaxRequestBytes: 1024}, Limits: validLimits(), Auth: AuthConfig{Provider: "jwt", JWTSecret: "short"}, Logging: LoggingConfig{Level: "info"}},
			wantErrSubstr: "auth.jwt_secret",
		},
		{
			name:          "bad logging level",
			cfg:           Config{Server: ServerConfig{Addr: "x"}, Transports: TransportsConfig{MaxRequestBytes: 1024}, Limits: validLimits(), Auth: AuthConfig{Provider: "none"}, Logging: LoggingConfig{Level: "verbose"}},
			wantErrSubstr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func validLimits() LimitsConfig {
	return LimitsConfig{
		Global:             10,
		PerConnectionHTTP:  1,
		PerConnectionOther: 1,
		PerToolDefault:     1,
		HardKillMultiplier: 2,
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single env var", "${FOO}", "bar"},
		{"env var with surrounding text", "prefix-${FOO}-suffix", "prefix-bar-suffix"},
		{"multiple env vars", "${FOO}/${BAZ}", "bar/qux"},
		{"no env vars", "no-vars-here", "no-vars-here"},
		{"unset env var", "${UNSET_VAR}", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
