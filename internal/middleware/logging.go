package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/mcp-gateway/internal/frame"
)

// Logging records method, request id, connection id, elapsed time, and
// outcome. It never transforms req or the response.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "middleware.logging")

	return func(ctx context.Context, req *Request, next Next) *frame.Response {
		start := time.Now()
		resp := next(ctx, req)
		elapsed := time.Since(start)

		attrs := []any{
			"method", req.Msg.Method,
			"connection_id", req.ConnectionID,
			"transport", req.Transport,
			"elapsed_ms", elapsed.Milliseconds(),
		}
		if len(req.Msg.ID) > 0 {
			attrs = append(attrs, "request_id", string(req.Msg.ID))
		}

		if resp != nil && resp.Error != nil {
			logger.Warn("request failed", append(attrs, "error_code", resp.Error.Code, "error", resp.Error.Message)...)
		} else {
			logger.Debug("request completed", attrs...)
		}

		return resp
	}
}
