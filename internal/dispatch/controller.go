// ABOUTME: Global, per-tool, and per-connection in-flight limits plus a
// ABOUTME: bounded FIFO backpressure queue, per §4.7.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrBackpressure is returned when the bounded queue is already full.
var ErrBackpressure = errors.New("dispatch: queue full")

// Limits configures the Controller's resource ceilings.
type Limits struct {
	Global          int // G, default 200
	PerToolDefault  int // T[name] default, default 32
	PerConnDefaultC int // C for WS/SSE, default 32
	PerConnDefaultH int // C for HTTP, default 1
	QueueDepth      int // Q, default 256
}

// DefaultLimits returns the spec's defaults.
func DefaultLimits() Limits {
	return Limits{
		Global:          200,
		PerToolDefault:  32,
		PerConnDefaultC: 32,
		PerConnDefaultH: 1,
		QueueDepth:      256,
	}
}

// Controller enforces the three concurrency ceilings and the bounded queue.
// Acquire tries all three slots non-blockingly first; only requests that
// can't be granted immediately consume a queue ticket while they wait.
type Controller struct {
	limits Limits

	global chan struct{}

	mu       sync.Mutex
	perTool  map[string]chan struct{}
	toolCaps map[string]int // per-tool override, name -> capacity

	connMu  sync.Mutex
	perConn map[string]chan struct{}

	queue chan struct{}
}

// NewController builds a Controller with the given limits. toolCaps
// overrides PerToolDefault for specific tool names.
func NewController(limits Limits, toolCaps map[string]int) *Controller {
	if limits.Global <= 0 {
		limits.Global = DefaultLimits().Global
	}
	if limits.PerToolDefault <= 0 {
		limits.PerToolDefault = DefaultLimits().PerToolDefault
	}
	if limits.QueueDepth <= 0 {
		limits.QueueDepth = DefaultLimits().QueueDepth
	}

	c := &Controller{
		limits:   limits,
		global:   make(chan struct{}, limits.Global),
		perTool:  make(map[string]chan struct{}),
		toolCaps: toolCaps,
		perConn:  make(map[string]chan struct{}),
		queue:    make(chan struct{}, limits.QueueDepth),
	}
	return c
}

func (c *Controller) toolSem(name string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.perTool[name]; ok {
		return ch
	}
	capacity := c.limits.PerToolDefault
	if override, ok := c.toolCaps[name]; ok && override > 0 {
		capacity = override
	}
	ch := make(chan struct{}, capacity)
	c.perTool[name] = ch
	return ch
}

func (c *Controller) connSem(connID string, limit int) chan struct{} {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if ch, ok := c.perConn[connID]; ok {
		return ch
	}
	if limit <= 0 {
		limit = c.limits.PerConnDefaultC
	}
	ch := make(chan struct{}, limit)
	c.perConn[connID] = ch
	return ch
}

// ReleaseConnection drops the per-connection semaphore once a connection
// closes, so its slot doesn't leak forever.
func (c *Controller) ReleaseConnection(connID string) {
	c.connMu.Lock()
	delete(c.perConn, connID)
	c.connMu.Unlock()
}

// Acquire reserves a global, per-tool, and per-connection slot for one
// request. toolName is "" for built-in methods, which still consume a
// global + per-connection slot but no per-tool slot. connLimit is the
// connection's configured concurrency ceiling (1 for HTTP, configured C for
// WS/SSE); pass 0 to use the controller's default.
//
// If all three slots are free, Acquire grants immediately without touching
// the queue. Otherwise it reserves one queue ticket and blocks (subject to
// ctx) until all three are available, returning ErrBackpressure immediately
// if the queue itself is already full.
func (c *Controller) Acquire(ctx context.Context, connID, toolName string, connLimit int) (release func(), err error) {
	global := c.global
	conn := c.connSem(connID, connLimit)
	var tool chan struct{}
	if toolName != "" {
		tool = c.toolSem(toolName)
	}

	if tryAcquire(global) {
		if tryAcquire(conn) {
			if tool == nil || tryAcquire(tool) {
				return c.releaser(global, conn, tool), nil
			}
			<-conn // release what we grabbed before falling through to the slow path
		}
		<-global
	}

	select {
	case c.queue <- struct{}{}:
	default:
		return nil, ErrBackpressure
	}
	defer func() { <-c.queue }()

	if err := blockingAcquire(ctx, global); err != nil {
		return nil, err
	}
	if err := blockingAcquire(ctx, conn); err != nil {
		<-global
		return nil, err
	}
	if tool != nil {
		if err := blockingAcquire(ctx, tool); err != nil {
			<-global
			<-conn
			return nil, err
		}
	}

	return c.releaser(global, conn, tool), nil
}

func (c *Controller) releaser(global, conn, tool chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-global
			<-conn
			if tool != nil {
				<-tool
			}
		})
	}
}

func tryAcquire(ch chan struct{}) bool {
	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func blockingAcquire(ctx context.Context, ch chan struct{}) error {
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
