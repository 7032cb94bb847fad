// ABOUTME: Tests for built-in method routing, tools/call validation and
// ABOUTME: error mapping, batch dispatch, and cancellation.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/frame"
	"github.com/2389/mcp-gateway/internal/middleware"
	"github.com/2389/mcp-gateway/internal/registry"
	"github.com/2389/mcp-gateway/internal/session"
)

type fakeOutbound struct{}

func (fakeOutbound) Send([]byte) error { return nil }

func newTestDispatcher(t *testing.T, module registry.ToolModule) (*Dispatcher, *session.Connection) {
	t.Helper()

	reg := registry.New(slog.Default())
	if module != nil {
		if _, err := reg.Register(module); err != nil {
			t.Fatalf("register module: %v", err)
		}
	}

	bus := events.NewBus(slog.Default())
	sessions := session.New(slog.Default(), bus)
	conn := sessions.Open(session.TransportHTTP, "127.0.0.1", fakeOutbound{})

	ctrl := NewController(DefaultLimits(), nil)
	chain := middleware.New()
	d := New(reg, chain, ctrl, sessions, bus, slog.Default(), Config{
		Server:                ServerInfo{Name: "test-gateway", Version: "0.0.0"},
		RequestTimeoutDefault: time.Second,
	})
	return d, conn
}

func msgFor(method string, params json.RawMessage) *frame.Message {
	return &frame.Message{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: params}
}

func singleFrame(msg *frame.Message) *frame.Frame {
	return &frame.Frame{Single: msg}
}

func TestDispatcher_Initialize(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("initialize", nil)), 1)
	if len(resp) != 1 || resp[0].Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var result map[string]any
	if err := json.Unmarshal(resp[0].Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["serverInfo"] == nil {
		t.Error("expected serverInfo in initialize result")
	}
}

func TestDispatcher_Ping(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("ping", nil)), 1)
	if len(resp) != 1 || resp[0].Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("nope", nil)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestDispatcher_Notification_NoResponse(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	msg := &frame.Message{JSONRPC: "2.0", Method: "ping"} // no ID -> notification
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msg), 1)
	if resp != nil {
		t.Fatalf("expected no response for a notification, got %+v", resp)
	}
}

func TestDispatcher_ToolsList(t *testing.T) {
	echo := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "echo", Description: "echoes", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return arguments, nil
		},
	)
	d, conn := newTestDispatcher(t, echo)
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/list", nil)), 1)
	if len(resp) != 1 || resp[0].Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var result struct {
		Tools []registry.ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(resp[0].Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "util.echo" {
		t.Fatalf("expected util.echo, got %+v", result.Tools)
	}
}

func TestDispatcher_ToolsCall_Success(t *testing.T) {
	echo := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "echo", Description: "echoes", InputSchema: json.RawMessage(`{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return arguments, nil
		},
	)
	d, conn := newTestDispatcher(t, echo)

	params, _ := json.Marshal(map[string]any{"name": "util.echo", "arguments": map[string]any{"text": "hi"}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatcher_ToolsCall_UnknownTool(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	params, _ := json.Marshal(map[string]any{"name": "does_not_exist", "arguments": map[string]any{}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestDispatcher_ToolsCall_SchemaViolation(t *testing.T) {
	echo := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "echo", Description: "echoes", InputSchema: json.RawMessage(`{"type":"object","required":["text"]}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return arguments, nil
		},
	)
	d, conn := newTestDispatcher(t, echo)

	params, _ := json.Marshal(map[string]any{"name": "util.echo", "arguments": map[string]any{}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
}

func TestDispatcher_ToolsCall_ToolError(t *testing.T) {
	failing := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "fail", Description: "always fails", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return nil, &registry.ToolError{Kind: registry.ToolErrorKindExecution, Message: "boom"}
		},
	)
	d, conn := newTestDispatcher(t, failing)

	params, _ := json.Marshal(map[string]any{"name": "util.fail", "arguments": map[string]any{}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeToolFailed {
		t.Fatalf("expected tool failed, got %+v", resp)
	}
}

func TestDispatcher_ToolsCall_Timeout(t *testing.T) {
	slow := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "slow", Description: "never returns in time", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	reg := registry.New(slog.Default())
	if _, err := reg.Register(slow); err != nil {
		t.Fatalf("register: %v", err)
	}
	bus := events.NewBus(slog.Default())
	sessions := session.New(slog.Default(), bus)
	conn := sessions.Open(session.TransportHTTP, "127.0.0.1", fakeOutbound{})
	ctrl := NewController(DefaultLimits(), nil)
	d := New(reg, middleware.New(), ctrl, sessions, bus, slog.Default(), Config{
		RequestTimeoutDefault: 20 * time.Millisecond,
	})

	params, _ := json.Marshal(map[string]any{"name": "util.slow", "arguments": map[string]any{}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeTimeout {
		t.Fatalf("expected timeout, got %+v", resp)
	}
}

func TestDispatcher_Batch_MixedNotification(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	fr := &frame.Frame{
		Batch: true,
		Messages: []*frame.Message{
			msgFor("ping", nil),
			{JSONRPC: "2.0", Method: "ping"}, // notification, suppressed
		},
	}
	resp := d.DispatchFrame(context.Background(), conn, "http", "", fr, 2)
	if len(resp) != 1 {
		t.Fatalf("expected 1 response (notification suppressed), got %d: %+v", len(resp), resp)
	}
}

func TestDispatcher_ToolsCall_PanicMappedToInternalError(t *testing.T) {
	panicky := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "boom", Description: "panics", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			panic("kaboom")
		},
	)
	d, conn := newTestDispatcher(t, panicky)

	params, _ := json.Marshal(map[string]any{"name": "util.boom", "arguments": map[string]any{}})
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msgFor("tools/call", params)), 1)
	if len(resp) != 1 || resp[0].Error == nil || resp[0].Error.Code != frame.CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp)
	}
}

func TestDispatcher_CancelNotification_CancelsPending(t *testing.T) {
	d, conn := newTestDispatcher(t, nil)
	cancelled := false
	conn.TrackRequest("req-1", func() { cancelled = true })

	params, _ := json.Marshal(map[string]any{"requestId": "req-1"})
	msg := &frame.Message{JSONRPC: "2.0", Method: "notifications/cancelled", Params: params}
	resp := d.DispatchFrame(context.Background(), conn, "http", "", singleFrame(msg), 1)

	if resp != nil {
		t.Fatalf("expected no response for a notification, got %+v", resp)
	}
	if !cancelled {
		t.Error("expected pending request to be cancelled")
	}
}
