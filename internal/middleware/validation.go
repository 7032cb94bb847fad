package middleware

import (
	"context"

	"github.com/2389/mcp-gateway/internal/frame"
)

// Validation re-checks jsonrpc/method/params shape in depth, in case a
// transport's own decoding missed something. On failure it short-circuits
// with Invalid Request.
func Validation() Middleware {
	return func(ctx context.Context, req *Request, next Next) *frame.Response {
		if verr := req.Msg.Validate(); verr != nil {
			return frame.NewErrorResponse(req.Msg.ID, verr.Code, verr.Message, verr.Data)
		}
		return next(ctx, req)
	}
}
