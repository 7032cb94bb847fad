// ABOUTME: Routes decoded frames to built-in methods or the tool registry,
// ABOUTME: enforcing schema validation, deadlines, and concurrency limits.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/frame"
	"github.com/2389/mcp-gateway/internal/middleware"
	"github.com/2389/mcp-gateway/internal/registry"
	"github.com/2389/mcp-gateway/internal/session"
)

// errToolPanicked wraps a recovered tool panic so mapContextErr's default
// case maps it to -32603 like any other uncaught tool failure, instead of
// crashing the dispatcher goroutine.
var errToolPanicked = errors.New("dispatch: tool panicked")

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string
	Version string
}

// Config bundles the Dispatcher's tunables. Zero values fall back to the
// spec's documented defaults.
type Config struct {
	Server                ServerInfo
	Capabilities          map[string]any
	RequestTimeoutDefault time.Duration
	HardKillMultiplier    int // hard_kill_after = HardKillMultiplier * deadline; default 2
}

func (c Config) withDefaults() Config {
	if c.Server.Name == "" {
		c.Server.Name = "mcp-gateway"
	}
	if c.RequestTimeoutDefault <= 0 {
		c.RequestTimeoutDefault = 30 * time.Second
	}
	if c.HardKillMultiplier <= 0 {
		c.HardKillMultiplier = 2
	}
	if c.Capabilities == nil {
		c.Capabilities = map[string]any{"tools": map[string]any{"listChanged": false}}
	}
	return c
}

// Dispatcher implements the Request Router (§4.6): built-in MCP methods,
// tool-call routing, and the glue between the middleware chain, the
// concurrency Controller, and the tool registry.
type Dispatcher struct {
	registry   *registry.Registry
	chain      *middleware.Chain
	controller *Controller
	sessions   *session.Registry
	bus        *events.Bus
	logger     *slog.Logger
	cfg        Config
}

// New builds a Dispatcher. chain may be middleware.New() with zero
// middlewares for a bare pass-through. bus may be nil.
func New(reg *registry.Registry, chain *middleware.Chain, ctrl *Controller, sessions *session.Registry, bus *events.Bus, logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:   reg,
		chain:      chain,
		controller: ctrl,
		sessions:   sessions,
		bus:        bus,
		logger:     logger.With("component", "dispatch"),
		cfg:        cfg.withDefaults(),
	}
}

func (d *Dispatcher) publish(evt events.Event) {
	if d.bus != nil {
		d.bus.Publish(evt)
	}
}

// DispatchFrame runs every Message in fr through the pipeline and returns
// the Responses to send, already filtered for notifications (which never
// produce a response). A single non-batch notification yields a nil, empty
// slice — callers should send nothing in that case.
func (d *Dispatcher) DispatchFrame(ctx context.Context, conn *session.Connection, transport, credential string, fr *frame.Frame, connLimit int) []*frame.Response {
	if !fr.Batch {
		resp := d.handleOne(ctx, conn, transport, credential, fr.Single, connLimit)
		if resp == nil {
			return nil
		}
		return []*frame.Response{resp}
	}

	type slot struct {
		idx  int
		resp *frame.Response
	}
	results := make(chan slot, len(fr.Messages))
	for i, msg := range fr.Messages {
		go func(i int, msg *frame.Message) {
			results <- slot{idx: i, resp: d.handleOne(ctx, conn, transport, credential, msg, connLimit)}
		}(i, msg)
	}

	out := make([]*frame.Response, 0, len(fr.Messages))
	for range fr.Messages {
		s := <-results
		if s.resp != nil {
			out = append(out, s.resp)
		}
	}
	return out
}

func (d *Dispatcher) handleOne(ctx context.Context, conn *session.Connection, transport, credential string, msg *frame.Message, connLimit int) *frame.Response {
	if shapeErr := msg.Validate(); shapeErr != nil {
		if msg.IsNotification() {
			return nil
		}
		return frame.NewErrorResponse(msg.ID, shapeErr.Code, shapeErr.Message, shapeErr.Data)
	}

	req := &middleware.Request{
		Msg:          msg,
		ConnectionID: conn.ID,
		Transport:    transport,
		Credential:   credential,
		RateLimitKey: conn.ID,
	}

	resp := d.chain.Handle(ctx, req, func(ctx context.Context, req *middleware.Request) *frame.Response {
		return d.route(ctx, conn, req, connLimit)
	})

	if msg.IsNotification() {
		return nil
	}
	return resp
}

func (d *Dispatcher) route(ctx context.Context, conn *session.Connection, req *middleware.Request, connLimit int) *frame.Response {
	msg := req.Msg
	switch msg.Method {
	case "initialize":
		return d.handleInitialize(msg)
	case "ping":
		return frame.NewResult(msg.ID, map[string]any{})
	case "tools/list":
		return d.handleToolsList(ctx, msg)
	case "tools/call":
		return d.handleToolsCall(ctx, conn, msg, connLimit)
	case "notifications/cancelled":
		d.handleCancelNotification(conn, msg)
		return nil
	default:
		return frame.NewErrorResponse(msg.ID, frame.CodeMethodNotFound, frame.CanonicalMessage(frame.CodeMethodNotFound),
			map[string]any{"method": msg.Method})
	}
}

func (d *Dispatcher) handleInitialize(msg *frame.Message) *frame.Response {
	return frame.NewResult(msg.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]any{"name": d.cfg.Server.Name, "version": d.cfg.Server.Version},
		"capabilities":    d.cfg.Capabilities,
	})
}

func (d *Dispatcher) handleToolsList(ctx context.Context, msg *frame.Message) *frame.Response {
	var caps []string
	if ac := auth.FromContext(ctx); ac != nil {
		caps = ac.Capabilities
	}
	defs := d.registry.ListForCapabilities(caps)
	return frame.NewResult(msg.ID, map[string]any{"tools": defs})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, conn *session.Connection, msg *frame.Message, connLimit int) *frame.Response {
	var params toolCallParams
	if len(msg.Params) == 0 {
		return frame.NewErrorResponse(msg.ID, frame.CodeInvalidParams, frame.CanonicalMessage(frame.CodeInvalidParams), nil)
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil || params.Name == "" {
		return frame.NewErrorResponse(msg.ID, frame.CodeInvalidParams, frame.CanonicalMessage(frame.CodeInvalidParams), nil)
	}

	module, toolName, def, ok := d.registry.Resolve(params.Name)
	if !ok {
		return frame.NewErrorResponse(msg.ID, frame.CodeMethodNotFound, frame.CanonicalMessage(frame.CodeMethodNotFound),
			map[string]any{"tool": params.Name})
	}

	if ac := auth.FromContext(ctx); ac != nil && len(def.Capabilities) > 0 {
		for _, required := range def.Capabilities {
			if !ac.HasCapability(required) {
				return frame.NewErrorResponse(msg.ID, frame.CodeUnauthorized, frame.CanonicalMessage(frame.CodeUnauthorized),
					map[string]any{"tool": params.Name, "missing_capability": required})
			}
		}
	}

	if violations := ValidateArguments(def.InputSchema, params.Arguments); len(violations) > 0 {
		return frame.NewErrorResponse(msg.ID, frame.CodeInvalidParams, frame.CanonicalMessage(frame.CodeInvalidParams),
			map[string]any{"tool": params.Name, "violations": violations})
	}

	deadline := d.cfg.RequestTimeoutDefault
	if def.Timeout > 0 && def.Timeout < deadline {
		deadline = def.Timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	requestID := uuid.New().String()
	conn.TrackRequest(requestID, cancel)
	defer func() {
		conn.UntrackRequest(requestID)
		cancel()
	}()

	release, err := d.controller.Acquire(callCtx, conn.ID, toolName, connLimit)
	if err != nil {
		if errors.Is(err, ErrBackpressure) {
			return frame.NewErrorResponse(msg.ID, frame.CodeBackpressure, frame.CanonicalMessage(frame.CodeBackpressure), nil)
		}
		return d.mapContextErr(msg.ID, params.Name, err)
	}
	defer release()

	d.publish(events.Event{Kind: events.KindRequestAccepted, RequestID: requestID, Method: "tools/call"})
	start := time.Now()

	result, callErr := d.callWithHardKill(callCtx, conn, requestID, module, toolName, params.Arguments, deadline)

	resp := d.mapToolResult(msg.ID, params.Name, result, callErr)
	errCode := 0
	if resp.Error != nil {
		errCode = resp.Error.Code
	}
	d.publish(events.Event{Kind: events.KindRequestCompleted, RequestID: requestID, Method: "tools/call", DurationMS: time.Since(start).Milliseconds(), ErrCode: errCode})
	return resp
}

// callWithHardKill invokes the tool, abandoning it (but not the goroutine)
// once hard_kill_after elapses so the caller gets -32005 back even if the
// tool ignores ctx cancellation.
func (d *Dispatcher) callWithHardKill(ctx context.Context, conn *session.Connection, requestID string, module registry.ToolModule, toolName string, arguments json.RawMessage, deadline time.Duration) (json.RawMessage, error) {
	callCtx := registry.CallContext{RequestID: requestID, ConnectionID: conn.ID, Deadline: time.Now().Add(deadline), Logger: d.logger}

	type out struct {
		result json.RawMessage
		err    error
	}
	done := make(chan out, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool panicked", "tool", toolName, "request_id", requestID, "panic", r)
				done <- out{nil, fmt.Errorf("%w: %v", errToolPanicked, r)}
			}
		}()
		result, err := module.Call(ctx, callCtx, toolName, arguments)
		done <- out{result, err}
	}()

	hardKill := time.NewTimer(time.Duration(d.cfg.HardKillMultiplier) * deadline)
	defer hardKill.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-hardKill.C:
		d.logger.Warn("tool exceeded hard_kill_after, abandoning result", "tool", toolName, "request_id", requestID)
		return nil, context.Canceled
	}
}

func (d *Dispatcher) mapToolResult(id json.RawMessage, toolName string, result json.RawMessage, err error) *frame.Response {
	if err == nil {
		return frame.NewResult(id, resultOrEmptyObject(result))
	}
	return d.mapContextErr(id, toolName, err)
}

func resultOrEmptyObject(result json.RawMessage) json.RawMessage {
	if len(result) == 0 {
		return json.RawMessage(`{}`)
	}
	return result
}

func (d *Dispatcher) mapContextErr(id json.RawMessage, toolName string, err error) *frame.Response {
	var toolErr *registry.ToolError
	if errors.As(err, &toolErr) {
		return frame.NewErrorResponse(id, frame.CodeToolFailed, frame.CanonicalMessage(frame.CodeToolFailed),
			map[string]any{"tool": toolName, "kind": toolErr.Kind, "message": toolErr.Message})
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return frame.NewErrorResponse(id, frame.CodeTimeout, frame.CanonicalMessage(frame.CodeTimeout), map[string]any{"tool": toolName})
	case errors.Is(err, context.Canceled):
		return frame.NewErrorResponse(id, frame.CodeCancelled, frame.CanonicalMessage(frame.CodeCancelled), map[string]any{"tool": toolName})
	default:
		return frame.NewErrorResponse(id, frame.CodeInternalError, frame.CanonicalMessage(frame.CodeInternalError), map[string]any{"tool": toolName})
	}
}

type cancelParams struct {
	RequestID string `json:"requestId"`
}

func (d *Dispatcher) handleCancelNotification(conn *session.Connection, msg *frame.Message) {
	var params cancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil || params.RequestID == "" {
		return
	}
	conn.CancelRequest(params.RequestID)
}
