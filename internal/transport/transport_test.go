// ABOUTME: Shared test fixtures for the HTTP/WS/SSE adapters: a minimal
// ABOUTME: dispatcher wired to an echo tool, reused across all three.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/2389/mcp-gateway/internal/dispatch"
	"github.com/2389/mcp-gateway/internal/events"
	"github.com/2389/mcp-gateway/internal/middleware"
	"github.com/2389/mcp-gateway/internal/registry"
	"github.com/2389/mcp-gateway/internal/session"
)

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *session.Registry, *events.Bus) {
	t.Helper()

	reg := registry.New(slog.Default())
	echo := registry.NewFuncModule("util").Add(
		registry.ToolDefinition{Name: "echo", Description: "echoes", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, callCtx registry.CallContext, arguments json.RawMessage) (json.RawMessage, error) {
			return arguments, nil
		},
	)
	if _, err := reg.Register(echo); err != nil {
		t.Fatalf("register: %v", err)
	}

	bus := events.NewBus(slog.Default())
	sessions := session.New(slog.Default(), bus)
	ctrl := dispatch.NewController(dispatch.DefaultLimits(), nil)
	d := dispatch.New(reg, middleware.New(), ctrl, sessions, bus, slog.Default(), dispatch.Config{
		RequestTimeoutDefault: 2 * time.Second,
	})
	return d, sessions, bus
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AllowOrigins = []string{"*"}
	cfg.PingInterval = 50 * time.Millisecond
	return cfg
}
