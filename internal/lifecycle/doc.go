// Package lifecycle implements the Lifecycle Coordinator (§4.9): it binds
// the one listener the transports share, signals readiness, and on shutdown
// tears everything down in drain-first order. The tool registry,
// dispatcher, and transports are built by the caller before the
// Coordinator runs.
package lifecycle
