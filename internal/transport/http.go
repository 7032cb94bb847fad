package transport

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/2389/mcp-gateway/internal/dispatch"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/frame"
	"github.com/2389/mcp-gateway/internal/session"
)

// noopOutbound is the Outbound a one-shot HTTP Connection is opened with:
// the request/response cycle never needs a server-initiated push.
type noopOutbound struct{}

func (noopOutbound) Send([]byte) error { return nil }

// HTTP serves the single-shot `/rpc` endpoint of §4.2.1.
type HTTP struct {
	dispatcher *dispatch.Dispatcher
	sessions   *session.Registry
	bus        *events.Bus
	logger     *slog.Logger
	cfg        Config
	draining   atomic.Bool
}

// NewHTTP builds the HTTP adapter.
func NewHTTP(d *dispatch.Dispatcher, sessions *session.Registry, bus *events.Bus, logger *slog.Logger, cfg Config) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		dispatcher: d,
		sessions:   sessions,
		bus:        bus,
		logger:     logger.With("component", "transport.http"),
		cfg:        cfg.withDefaults(),
	}
}

// Drain marks the adapter as refusing new work; in-flight requests still
// finish normally since HTTP connections are one request long anyway.
func (h *HTTP) Drain() { h.draining.Store(true) }

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r, h.cfg) {
		return
	}
	applyCORS(w, r, h.cfg)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.draining.Load() {
		http.Error(w, "Server Unavailable: draining", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxRequestBytes+1))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > h.cfg.MaxRequestBytes {
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	fr, parseErr := frame.Decode(body)
	if parseErr != nil {
		http.Error(w, "Bad Request: "+parseErr.Message, http.StatusBadRequest)
		return
	}
	if fr.IsEmptyBatch() {
		h.writeJSON(w, frame.NewErrorResponse(nil, frame.CodeInvalidRequest, frame.CanonicalMessage(frame.CodeInvalidRequest), nil))
		return
	}

	credential := h.cfg.CredentialFromRequest(r)
	conn := h.sessions.Open(session.TransportHTTP, r.RemoteAddr, noopOutbound{})
	defer h.sessions.Close(conn, "request complete")

	responses := h.dispatcher.DispatchFrame(r.Context(), conn, "http", credential, fr, 1)

	if fr.Batch {
		if len(responses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		body, err := frame.EncodeBatch(responses)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h.writeRaw(w, body)
		return
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, responses[0])
}

func (h *HTTP) writeJSON(w http.ResponseWriter, resp *frame.Response) {
	body, err := frame.Encode(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeRaw(w, body)
}

func (h *HTTP) writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
