// ABOUTME: Thread-safe registry of live Connections and SSE session bindings.
// ABOUTME: Owns the graceful-drain sequence the Lifecycle Coordinator triggers.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcp-gateway/internal/events"
)

// drainPollInterval is how often DrainAll re-checks whether pending requests
// have finished draining.
const drainPollInterval = 50 * time.Millisecond

// Registry tracks every open Connection and the session_id -> Connection
// binding SSE streams use. Reads are RWMutex-protected, matching the
// registry's "read-mostly, serialized writes" shape.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	sessions map[string]string // session_id -> connection_id
	logger   *slog.Logger
	bus      *events.Bus // optional; nil means no event publication
}

// New creates an empty Registry. bus may be nil.
func New(logger *slog.Logger, bus *events.Bus) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:    make(map[string]*Connection),
		sessions: make(map[string]string),
		logger:   logger.With("component", "session"),
		bus:      bus,
	}
}

func (r *Registry) publish(evt events.Event) {
	if r.bus != nil {
		r.bus.Publish(evt)
	}
}

// Open creates and tracks a new Connection.
func (r *Registry) Open(transport Transport, remoteAddr string, outbound Outbound) *Connection {
	conn := newConnection(uuid.New().String(), transport, remoteAddr, outbound)

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	r.logger.Debug("connection opened", "connection_id", conn.ID, "transport", transport, "remote_addr", remoteAddr)
	r.publish(events.Event{Kind: events.KindConnectionOpened, ConnectionID: conn.ID, Transport: string(transport)})
	return conn
}

// CloseByRemoteAddr closes any existing open connection of the given
// transport from the same remote address, so a reconnecting client (e.g. an
// SSE client re-GETting /sse) doesn't leave its prior session dangling.
// A no-op if no such connection is open.
func (r *Registry) CloseByRemoteAddr(transport Transport, remoteAddr string) {
	r.mu.RLock()
	var prior *Connection
	for _, c := range r.conns {
		if c.Transport == transport && c.RemoteAddr == remoteAddr && c.State() != StateClosed {
			prior = c
			break
		}
	}
	r.mu.RUnlock()

	if prior != nil {
		r.Close(prior, "superseded by reconnect")
	}
}

// BindSession mints a session_id for an SSE connection. Per §4.3, a
// session_id maps to at most one open SSE Connection; callers reconnecting
// a stale session should Close the prior Connection first.
func (r *Registry) BindSession(conn *Connection) string {
	sessionID := uuid.New().String()

	r.mu.Lock()
	r.sessions[sessionID] = conn.ID
	r.mu.Unlock()

	r.logger.Debug("session bound", "session_id", sessionID, "connection_id", conn.ID)
	return sessionID
}

// LookupSession resolves a session_id to its bound Connection. Returns false
// if the session is unknown or its Connection has since closed.
func (r *Registry) LookupSession(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	connID, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if conn.State() == StateClosed {
		return nil, false
	}
	return conn, true
}

// Close idempotently closes a Connection: cancels its pending requests,
// unbinds any session pointing at it, and removes it from the registry.
func (r *Registry) Close(conn *Connection, reason string) {
	if conn == nil || conn.State() == StateClosed {
		return
	}

	r.mu.Lock()
	_, tracked := r.conns[conn.ID]
	delete(r.conns, conn.ID)
	for sid, cid := range r.sessions {
		if cid == conn.ID {
			delete(r.sessions, sid)
		}
	}
	r.mu.Unlock()

	if !tracked {
		return
	}

	conn.cancelAllPending()
	conn.markClosed()

	r.logger.Debug("connection closed", "connection_id", conn.ID, "reason", reason)
	r.publish(events.Event{Kind: events.KindConnectionClosed, ConnectionID: conn.ID, Reason: reason})
}

// DrainAll transitions every open Connection to Draining, stops new work
// from being accepted (the caller's responsibility — transports check
// State() before accepting), waits up to timeout for pending requests to
// empty, then force-closes whatever remains.
func (r *Registry) DrainAll(ctx context.Context, timeout time.Duration) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.beginDrain()
	}

	r.publish(events.Event{Kind: events.KindServerDraining, GracePeriodMS: timeout.Milliseconds()})
	r.logger.Info("draining connections", "count", len(conns), "grace_period", timeout)

	deadline := time.Now().Add(timeout)
drainLoop:
	for {
		if allDrained(conns) {
			break
		}
		if time.Now().After(deadline) {
			r.logger.Warn("drain grace period elapsed with requests still in flight")
			break
		}
		select {
		case <-ctx.Done():
			break drainLoop
		case <-time.After(drainPollInterval):
		}
	}

	for _, c := range conns {
		r.Close(c, "server shutting down")
	}
}

func allDrained(conns []*Connection) bool {
	for _, c := range conns {
		if c.PendingCount() > 0 {
			return false
		}
	}
	return true
}

// Count returns the number of currently tracked connections (for metrics/tests).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
