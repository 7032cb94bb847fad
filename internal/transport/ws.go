package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/mcp-gateway/internal/dispatch"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/frame"
	"github.com/2389/mcp-gateway/internal/session"
)

// wsOutbound adapts a *websocket.Conn to session.Outbound. coder/websocket
// permits one concurrent reader and one concurrent writer but not multiple
// concurrent writers, so every write (including pings) goes through mu.
type wsOutbound struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (o *wsOutbound) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return o.ws.Write(ctx, websocket.MessageText, data)
}

func (o *wsOutbound) ping(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ws.Ping(ctx)
}

// WS serves the bidirectional WebSocket adapter of §4.2.2.
type WS struct {
	dispatcher *dispatch.Dispatcher
	sessions   *session.Registry
	bus        *events.Bus
	logger     *slog.Logger
	cfg        Config
	draining   atomic.Bool
}

// NewWS builds the WebSocket adapter.
func NewWS(d *dispatch.Dispatcher, sessions *session.Registry, bus *events.Bus, logger *slog.Logger, cfg Config) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{
		dispatcher: d,
		sessions:   sessions,
		bus:        bus,
		logger:     logger.With("component", "transport.ws"),
		cfg:        cfg.withDefaults(),
	}
}

// Drain marks the adapter as refusing new upgrades. Existing connections
// are left to the Session Registry's DrainAll sequence.
func (t *WS) Drain() { t.draining.Store(true) }

func (t *WS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		http.Error(w, "Server Unavailable: draining", http.StatusServiceUnavailable)
		return
	}

	opts := &websocket.AcceptOptions{}
	for _, o := range t.cfg.AllowOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
		} else {
			opts.OriginPatterns = append(opts.OriginPatterns, o)
		}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		t.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(t.cfg.MaxRequestBytes)

	credential := t.cfg.CredentialFromRequest(r)
	out := &wsOutbound{ws: ws}
	conn := t.sessions.Open(session.TransportWS, r.RemoteAddr, out)
	defer func() {
		t.sessions.Close(conn, "connection closed")
		_ = ws.CloseNow()
	}()

	ctx := r.Context()
	readDone := make(chan struct{})
	go t.readLoop(ctx, ws, conn, credential, readDone)

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-readDone:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, t.cfg.PingInterval/2)
			err := out.ping(pingCtx)
			cancel()
			if err != nil {
				missed++
				if missed >= 2 {
					_ = ws.Close(websocket.StatusInternalError, "ping timeout")
					return
				}
				continue
			}
			missed = 0
		}
	}
}

func (t *WS) readLoop(ctx context.Context, ws *websocket.Conn, conn *session.Connection, credential string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		conn.Touch()

		fr, parseErr := frame.Decode(data)
		if parseErr != nil {
			_ = conn.Outbound.Send(mustEncode(parseErr.Response()))
			continue
		}
		if fr.IsEmptyBatch() {
			resp := frame.NewErrorResponse(nil, frame.CodeInvalidRequest, frame.CanonicalMessage(frame.CodeInvalidRequest), nil)
			_ = conn.Outbound.Send(mustEncode(resp))
			continue
		}

		go t.handleFrame(ctx, conn, credential, fr)
	}
}

func (t *WS) handleFrame(ctx context.Context, conn *session.Connection, credential string, fr *frame.Frame) {
	responses := t.dispatcher.DispatchFrame(ctx, conn, "ws", credential, fr, t.cfg.PerConnectionLimit)
	if len(responses) == 0 {
		return
	}

	var body []byte
	var err error
	if fr.Batch {
		body, err = frame.EncodeBatch(responses)
	} else {
		body, err = frame.Encode(responses[0])
	}
	if err != nil || body == nil {
		return
	}
	_ = conn.Outbound.Send(body)
}

func mustEncode(resp *frame.Response) []byte {
	body, err := frame.Encode(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return body
}
