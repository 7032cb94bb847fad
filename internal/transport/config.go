package transport

import (
	"net/http"
	"time"
)

// Config holds the tunables shared by all three adapters.
type Config struct {
	MaxRequestBytes     int64
	PingInterval        time.Duration
	AllowOrigins        []string // "*" allows any origin
	SessionHeaderName   string   // default "Mcp-Session-Id"
	PerConnectionLimit  int      // WS/SSE concurrency ceiling passed to the Controller
	CredentialFromRequest func(*http.Request) string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequestBytes:    1 << 20, // 1 MiB
		PingInterval:       30 * time.Second,
		SessionHeaderName:  "Mcp-Session-Id",
		PerConnectionLimit: 32,
		CredentialFromRequest: func(r *http.Request) string {
			if auth := r.Header.Get("Authorization"); auth != "" {
				return stripBearer(auth)
			}
			return ""
		},
	}
}

func stripBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = d.MaxRequestBytes
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.SessionHeaderName == "" {
		c.SessionHeaderName = d.SessionHeaderName
	}
	if c.PerConnectionLimit <= 0 {
		c.PerConnectionLimit = d.PerConnectionLimit
	}
	if c.CredentialFromRequest == nil {
		c.CredentialFromRequest = d.CredentialFromRequest
	}
	return c
}
