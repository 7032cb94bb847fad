// Package transport implements the three adapters of §4.2: one-shot HTTP
// POST, bidirectional WebSocket, and the legacy n8n-compatible SSE+POST
// pair. All three decode a Frame, hand it to a dispatch.Dispatcher, and
// encode whatever Responses come back — they differ only in framing and
// liveness, never in dispatch semantics.
package transport
