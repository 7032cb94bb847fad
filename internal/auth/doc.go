// Package auth implements the Auth middleware hook (spec §4.4) and its
// context propagation. It defines the pluggable Authenticator interface the
// Auth middleware calls, plus three implementations: two verifiers (JWT, SSH
// signature) and TokenStore, an in-memory store of opaque bearer tokens.
//
// # Scope
//
// The JWT and SSH verifiers check credentials the caller already holds.
// TokenStore issues tokens in-process and keeps them only in memory; nothing
// in this package persists principal records.
//
// # Authenticator
//
// Authenticator.Authenticate(credential) -> (*AuthContext, error) is the
// single hook the Auth middleware calls, regardless of transport. Each
// transport hands it the raw string its Config.CredentialFromRequest
// returns; by default that is the request's Authorization header with any
// "Bearer " prefix removed, for all three transports. No WS subprotocol or
// SSE session header is read.
//
// # AuthContext and capabilities
//
// An AuthContext carries a principal ID and a capability set. The Tool
// Registry's capability filtering and the dispatcher's per-tool capability
// check both consume AuthContext.Capabilities.
package auth
