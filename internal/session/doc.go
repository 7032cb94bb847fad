// Package session implements the Session & Connection Registry (§4.3):
// tracking live transport connections, binding SSE sessions to their
// stream, cancelling in-flight requests on disconnect, and coordinating
// graceful drain across every open connection.
package session
