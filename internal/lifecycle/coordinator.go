// ABOUTME: Brings up the HTTP listener serving all three transports and
// ABOUTME: tears it down in the drain-then-refuse-then-exit order of §4.9.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/mcp-gateway/internal/registry"
	"github.com/2389/mcp-gateway/internal/session"
)

// Drainable is anything the Coordinator must flip into "refuse new work"
// mode before draining connections. Every transport adapter implements it.
type Drainable interface {
	Drain()
}

// Coordinator owns the single HTTP listener all three transports are
// mounted on and sequences startup/shutdown per §4.9. Start order
// (ConfigManager -> TelemetryInit -> ToolRegistry -> Dispatcher ->
// Transports) happens entirely in the caller that constructs the
// Coordinator's dependencies; the Coordinator itself only owns the final
// "start accepting" / "stop accepting" step and the shutdown sequence.
type Coordinator struct {
	addr         string
	handler      http.Handler
	sessions     *session.Registry
	tools        *registry.Registry
	drainables   []Drainable
	drainTimeout time.Duration
	shutdownWait time.Duration
	logger       *slog.Logger

	server *http.Server
	ready  chan struct{}
}

// New builds a Coordinator. drainTimeout bounds Session.DrainAll; shutdownWait
// bounds the final http.Server.Shutdown and ToolRegistry.Shutdown calls.
func New(addr string, handler http.Handler, sessions *session.Registry, tools *registry.Registry, drainables []Drainable, drainTimeout, shutdownWait time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	if shutdownWait <= 0 {
		shutdownWait = 5 * time.Second
	}
	return &Coordinator{
		addr:         addr,
		handler:      handler,
		sessions:     sessions,
		tools:        tools,
		drainables:   drainables,
		drainTimeout: drainTimeout,
		shutdownWait: shutdownWait,
		logger:       logger.With("component", "lifecycle"),
		ready:        make(chan struct{}),
	}
}

// Ready closes once the listener is bound and transports are accepting
// connections — the signal §4.9 calls out explicitly.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// Run listens on addr and serves until ctx is cancelled or the server
// fails, then runs the graceful shutdown sequence. It returns the first
// error encountered, if any.
func (c *Coordinator) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("lifecycle: listen on %s: %w", c.addr, err)
	}

	c.server = &http.Server{Handler: c.handler}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("transports accepting connections", "addr", ln.Addr().String())
		close(c.ready)
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown signal received, draining")
	case serveErr = <-errCh:
		if serveErr != nil {
			c.logger.Error("transport server error", "error", serveErr)
		}
	}

	shutdownErr := c.shutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// shutdown implements §4.9's stop order: transports stop accepting, then
// DrainAll waits out in-flight work, then the HTTP server and tool modules
// are shut down.
func (c *Coordinator) shutdown() error {
	for _, d := range c.drainables {
		d.Drain()
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()
	c.sessions.DrainAll(drainCtx, c.drainTimeout)

	ctx, cancel2 := context.WithTimeout(context.Background(), c.shutdownWait)
	defer cancel2()

	var firstErr error
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.Warn("http server shutdown error", "error", err)
			firstErr = err
		}
	}
	if err := c.tools.Shutdown(ctx); err != nil {
		c.logger.Warn("tool registry shutdown error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	c.logger.Info("shutdown complete")
	return firstErr
}

// ForceClose immediately tears down the listener without waiting for
// drain, for a second stop signal arriving mid-shutdown per §4.9.
func (c *Coordinator) ForceClose() error {
	if c.server == nil {
		return nil
	}
	return c.server.Close()
}
