// ABOUTME: The composable middleware chain: classic onion ordering, in on
// ABOUTME: the way down, reverse on the way back out.
package middleware

import (
	"context"

	"github.com/2389/mcp-gateway/internal/frame"
)

// Request is the in-flight request a middleware may inspect or transform.
type Request struct {
	Msg          *frame.Message
	ConnectionID string
	Transport    string // "http" | "ws" | "sse"
	Credential   string // raw credential extracted by the transport, for Auth
	RateLimitKey string // defaults to ConnectionID if unset
}

// Next invokes the remainder of the chain (or the terminal handler).
type Next func(ctx context.Context, req *Request) *frame.Response

// Middleware wraps Next, optionally short-circuiting, transforming req
// before calling next, or transforming the response after.
type Middleware func(ctx context.Context, req *Request, next Next) *frame.Response

// Chain composes middlewares in configured order.
type Chain struct {
	mws []Middleware
}

// New builds a Chain from middlewares in the order they should run on the
// way in (and, symmetrically, unwind on the way out).
func New(mws ...Middleware) *Chain {
	return &Chain{mws: mws}
}

// Handle runs req through every middleware, finally invoking terminal.
func (c *Chain) Handle(ctx context.Context, req *Request, terminal Next) *frame.Response {
	return c.build(0, terminal)(ctx, req)
}

func (c *Chain) build(i int, terminal Next) Next {
	if i >= len(c.mws) {
		return terminal
	}
	next := c.build(i+1, terminal)
	mw := c.mws[i]
	return func(ctx context.Context, req *Request) *frame.Response {
		return mw(ctx, req, next)
	}
}
