// Package config handles configuration loading for mcp-gatewayd.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults so a
// deployment only needs to override what it cares about.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${MCP_GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. MCP_GATEWAY_JWT_SECRET additionally overrides
// auth.jwt_secret directly, taking precedence over the YAML value, so a
// secret never has to be committed to the config file at all.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transports:
//	  request_timeout_default: "30s"
//	  ping_interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server:
//
//	server:
//	  addr: "0.0.0.0:8080"
//
// Transports:
//
//	transports:
//	  request_timeout_default: "30s"
//	  max_request_bytes: 1048576
//	  ping_interval: "30s"
//	  cors_allow_origins: ["*"]
//	  session_header_name: "Mcp-Session-Id"
//
// Limits (the dispatcher's Controller ceilings — G, C, T[*], Q):
//
//	limits:
//	  global: 200
//	  per_connection_http: 1
//	  per_connection_other: 32
//	  per_tool_default: 32
//	  per_tool:
//	    slow_tool: 4
//	  queue_depth: 256
//	  hard_kill_multiplier: 2
//
// Middleware:
//
//	middleware:
//	  enabled: ["logging", "validation", "rate_limit", "auth", "metrics"]
//	  rate_limit:
//	    requests_per_second: 50
//	    burst: 100
//
// Auth:
//
//	auth:
//	  provider: "jwt"  # none, jwt, ssh
//	  jwt_secret: "${MCP_GATEWAY_JWT_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load validates all of the above before returning, so an invalid config
// prevents startup rather than failing partway through.
//
// # Usage
//
//	cfg, err := config.Load("/etc/mcp-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
