// ABOUTME: Configuration loading and parsing for mcp-gatewayd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration: transport bind address,
// request framing, concurrency limits, middleware, auth provider, logging.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transports TransportsConfig `yaml:"transports"`
	Limits     LimitsConfig     `yaml:"limits"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the shared listen address all three transports mount on.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// TransportsConfig holds per-transport framing and timeout knobs.
type TransportsConfig struct {
	RequestTimeoutDefault    time.Duration `yaml:"-"`
	RequestTimeoutDefaultRaw string        `yaml:"request_timeout_default"`
	MaxRequestBytes          int64         `yaml:"max_request_bytes"`
	PingInterval             time.Duration `yaml:"-"`
	PingIntervalRaw          string        `yaml:"ping_interval"`
	CORSAllowOrigins         []string      `yaml:"cors_allow_origins"`
	SessionHeaderName        string        `yaml:"session_header_name"`
}

// LimitsConfig holds the concurrency ceilings enforced by the dispatcher's
// Controller: G (global), C (per-connection), T[*] (per-tool), Q (queue).
type LimitsConfig struct {
	Global             int            `yaml:"global"`
	PerConnectionHTTP  int            `yaml:"per_connection_http"`
	PerConnectionOther int            `yaml:"per_connection_other"`
	PerToolDefault     int            `yaml:"per_tool_default"`
	PerTool            map[string]int `yaml:"per_tool"`
	QueueDepth         int            `yaml:"queue_depth"`
	HardKillMultiplier int            `yaml:"hard_kill_multiplier"`
}

// MiddlewareConfig selects which onion-chain middleware are enabled and the
// order they're composed in. Names must match the registered middleware
// names (logging, validation, rate_limit, auth, metrics).
type MiddlewareConfig struct {
	Enabled   []string        `yaml:"enabled"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the default token-bucket rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig selects and configures the Authenticator implementation.
type AuthConfig struct {
	Provider  string `yaml:"provider"` // "jwt", "ssh", or "none"
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if secret := os.Getenv("MCP_GATEWAY_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable value. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "0.0.0.0:8080"
	}
	if cfg.Transports.RequestTimeoutDefaultRaw == "" {
		cfg.Transports.RequestTimeoutDefaultRaw = "30s"
	}
	if cfg.Transports.MaxRequestBytes == 0 {
		cfg.Transports.MaxRequestBytes = 1 << 20
	}
	if cfg.Transports.PingIntervalRaw == "" {
		cfg.Transports.PingIntervalRaw = "30s"
	}
	if cfg.Transports.SessionHeaderName == "" {
		cfg.Transports.SessionHeaderName = "Mcp-Session-Id"
	}
	if cfg.Limits.Global == 0 {
		cfg.Limits.Global = 200
	}
	if cfg.Limits.PerConnectionHTTP == 0 {
		cfg.Limits.PerConnectionHTTP = 1
	}
	if cfg.Limits.PerConnectionOther == 0 {
		cfg.Limits.PerConnectionOther = 32
	}
	if cfg.Limits.PerToolDefault == 0 {
		cfg.Limits.PerToolDefault = 32
	}
	if cfg.Limits.QueueDepth == 0 {
		cfg.Limits.QueueDepth = 256
	}
	if cfg.Limits.HardKillMultiplier == 0 {
		cfg.Limits.HardKillMultiplier = 2
	}
	if len(cfg.Middleware.Enabled) == 0 {
		cfg.Middleware.Enabled = []string{"logging", "validation", "rate_limit", "auth", "metrics"}
	}
	if cfg.Middleware.RateLimit.RequestsPerSecond == 0 {
		cfg.Middleware.RateLimit.RequestsPerSecond = 50
	}
	if cfg.Middleware.RateLimit.Burst == 0 {
		cfg.Middleware.RateLimit.Burst = 100
	}
	if cfg.Auth.Provider == "" {
		cfg.Auth.Provider = "none"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Transports.MaxRequestBytes <= 0 {
		return fmt.Errorf("transports.max_request_bytes must be positive")
	}

	if c.Limits.Global <= 0 {
		return fmt.Errorf("limits.global must be positive")
	}
	if c.Limits.PerConnectionHTTP <= 0 || c.Limits.PerConnectionOther <= 0 {
		return fmt.Errorf("limits.per_connection_http and per_connection_other must be positive")
	}
	if c.Limits.PerToolDefault <= 0 {
		return fmt.Errorf("limits.per_tool_default must be positive")
	}
	if c.Limits.QueueDepth < 0 {
		return fmt.Errorf("limits.queue_depth must not be negative")
	}
	if c.Limits.HardKillMultiplier <= 1 {
		return fmt.Errorf("limits.hard_kill_multiplier must be greater than 1")
	}

	switch c.Auth.Provider {
	case "none", "ssh":
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("auth.provider %q is not one of: none, jwt, ssh", c.Auth.Provider)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

func parseDurations(cfg *Config) error {
	var err error

	cfg.Transports.RequestTimeoutDefault, err = time.ParseDuration(cfg.Transports.RequestTimeoutDefaultRaw)
	if err != nil {
		return fmt.Errorf("parsing request_timeout_default %q: %w", cfg.Transports.RequestTimeoutDefaultRaw, err)
	}

	cfg.Transports.PingInterval, err = time.ParseDuration(cfg.Transports.PingIntervalRaw)
	if err != nil {
		return fmt.Errorf("parsing ping_interval %q: %w", cfg.Transports.PingIntervalRaw, err)
	}

	return nil
}
