// Package events implements the server's in-process Event Bus (§4.10): a
// non-blocking pub/sub of typed lifecycle events, purely informational and
// never on the critical path of request dispatch.
package events
