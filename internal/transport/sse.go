package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/mcp-gateway/internal/dispatch"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/frame"
	"github.com/2389/mcp-gateway/internal/session"
)

// sseOutbound serializes writes onto one SSE stream and reorders completed
// responses back into acceptance order, per §4.2.3's ordering guarantee.
// reserveSeq is called synchronously by the POST handler before the
// corresponding request is dispatched; deliver is called once that
// dispatch completes, possibly out of order across goroutines.
type sseOutbound struct {
	w       io.Writer
	flusher http.Flusher

	mu      sync.Mutex
	nextSeq uint64
	next    uint64
	pending map[uint64][]byte
}

func newSSEOutbound(w io.Writer, flusher http.Flusher) *sseOutbound {
	return &sseOutbound{w: w, flusher: flusher, pending: make(map[uint64][]byte)}
}

func (o *sseOutbound) reserveSeq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.nextSeq
	o.nextSeq++
	return seq
}

// deliver stores body (nil for a pure-notification POST with nothing to
// emit) under seq, then flushes every contiguous entry starting at the
// stream's next expected sequence number.
func (o *sseOutbound) deliver(seq uint64, body []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[seq] = body
	var firstErr error
	for {
		b, ok := o.pending[o.next]
		if !ok {
			break
		}
		delete(o.pending, o.next)
		o.next++
		if b == nil {
			continue
		}
		if err := o.writeEventLocked("message", b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Send implements session.Outbound for server-initiated pushes outside the
// request/response ordering path (e.g. out-of-band notifications).
func (o *sseOutbound) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeEventLocked("message", data)
}

func (o *sseOutbound) writeEventLocked(name string, data []byte) error {
	if _, err := fmt.Fprintf(o.w, "event: %s\n", name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(o.w, "data: %s\n\n", data); err != nil {
		return err
	}
	o.flusher.Flush()
	return nil
}

func (o *sseOutbound) writeJSONEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeEventLocked(name, data)
}

func (o *sseOutbound) writeRawEvent(name, line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := fmt.Fprintf(o.w, "event: %s\n", name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(o.w, "data: %s\n\n", line); err != nil {
		return err
	}
	o.flusher.Flush()
	return nil
}

// SSE serves the legacy n8n-compatible GET /sse + POST /messages pair of
// §4.2.3.
type SSE struct {
	dispatcher *dispatch.Dispatcher
	sessions   *session.Registry
	bus        *events.Bus
	logger     *slog.Logger
	cfg        Config
	draining   atomic.Bool
}

// NewSSE builds the SSE adapter.
func NewSSE(d *dispatch.Dispatcher, sessions *session.Registry, bus *events.Bus, logger *slog.Logger, cfg Config) *SSE {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSE{
		dispatcher: d,
		sessions:   sessions,
		bus:        bus,
		logger:     logger.With("component", "transport.sse"),
		cfg:        cfg.withDefaults(),
	}
}

// Drain marks the adapter as refusing new streams; live streams learn
// about drain through Connection.State() and self-close with event: close.
func (s *SSE) Drain() { s.draining.Store(true) }

// HandleStream serves GET /sse.
func (s *SSE) HandleStream(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r, s.cfg) {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.draining.Load() {
		http.Error(w, "Server Unavailable: draining", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	applyCORS(w, r, s.cfg)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// A reconnect from the same remote address supersedes whatever session
	// that address previously held open; close it before minting the new one
	// so a stale session_id can never be bound to two live streams.
	s.sessions.CloseByRemoteAddr(session.TransportSSE, r.RemoteAddr)

	out := newSSEOutbound(w, flusher)
	conn := s.sessions.Open(session.TransportSSE, r.RemoteAddr, out)
	sessionID := s.sessions.BindSession(conn)
	defer s.sessions.Close(conn, "stream closed")

	if err := out.writeRawEvent("endpoint", "/messages?sessionId="+sessionID); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn.State() == session.StateDraining {
				_ = out.writeJSONEvent("close", map[string]string{"reason": "server shutting down"})
				return
			}
			if err := out.writeJSONEvent("ping", map[string]any{}); err != nil {
				return
			}
		}
	}
}

// HandleMessages serves POST /messages.
func (s *SSE) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r, s.cfg) {
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	applyCORS(w, r, s.cfg)

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.Header.Get(s.cfg.SessionHeaderName)
	}
	if sessionID == "" {
		http.Error(w, "Bad Request: missing sessionId", http.StatusBadRequest)
		return
	}

	conn, ok := s.sessions.LookupSession(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	out, ok := conn.Outbound.(*sseOutbound)
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestBytes+1))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.cfg.MaxRequestBytes {
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	fr, parseErr := frame.Decode(body)
	seq := out.reserveSeq()

	if parseErr != nil {
		w.WriteHeader(http.StatusAccepted)
		go func() { _ = out.deliver(seq, mustEncode(parseErr.Response())) }()
		return
	}
	if fr.IsEmptyBatch() {
		resp := frame.NewErrorResponse(nil, frame.CodeInvalidRequest, frame.CanonicalMessage(frame.CodeInvalidRequest), nil)
		w.WriteHeader(http.StatusAccepted)
		go func() { _ = out.deliver(seq, mustEncode(resp)) }()
		return
	}

	credential := s.cfg.CredentialFromRequest(r)
	w.WriteHeader(http.StatusAccepted)
	go s.dispatchAndDeliver(r.Context(), conn, out, seq, credential, fr)
}

func (s *SSE) dispatchAndDeliver(ctx context.Context, conn *session.Connection, out *sseOutbound, seq uint64, credential string, fr *frame.Frame) {
	responses := s.dispatcher.DispatchFrame(ctx, conn, "sse", credential, fr, s.cfg.PerConnectionLimit)
	if len(responses) == 0 {
		_ = out.deliver(seq, nil)
		return
	}

	var body []byte
	var err error
	if fr.Batch {
		body, err = frame.EncodeBatch(responses)
	} else {
		body, err = frame.Encode(responses[0])
	}
	if err != nil {
		_ = out.deliver(seq, nil)
		return
	}
	_ = out.deliver(seq, body)
}
