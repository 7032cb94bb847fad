package middleware

import (
	"context"
	"errors"

	"github.com/2389/mcp-gateway/internal/auth"
	"github.com/2389/mcp-gateway/internal/frame"
)

// authContextKeyType is unexported so only this package's Auth middleware
// can populate the *auth.AuthContext this context carries downstream —
// consumers read it via auth.FromContext.
type authContextKeyType struct{}

// Auth validates req.Credential via authenticator. Every transport fills
// req.Credential from its Config.CredentialFromRequest, which by default
// reads the request's Authorization header (minus a "Bearer " prefix): the
// POST for HTTP and SSE /messages, the upgrade request for WS. No WS
// subprotocol or SSE session header is read. On success the resulting *auth.AuthContext is attached
// to ctx for the dispatcher's capability checks. On failure, or when auth is
// required and no credential was supplied, it returns -32001 Unauthorized.
//
// When requireAuth is false and no credential is present, the request
// proceeds with defaultCaps instead of a principal — the "no auth -> default
// caps" fallback the registry's capability filtering already expects.
func Auth(authenticator auth.Authenticator, requireAuth bool, defaultCaps []string) Middleware {
	return func(ctx context.Context, req *Request, next Next) *frame.Response {
		if req.Credential == "" {
			if requireAuth {
				return unauthorized(req.Msg.ID, "authentication required")
			}
			ctx = auth.WithAuth(ctx, &auth.AuthContext{Method: "anonymous", Capabilities: defaultCaps})
			return next(ctx, req)
		}

		if authenticator == nil {
			return unauthorized(req.Msg.ID, "no authenticator configured")
		}

		authCtx, err := authenticator.Authenticate(req.Credential)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return unauthorized(req.Msg.ID, "token expired")
			}
			return unauthorized(req.Msg.ID, "invalid credential")
		}

		ctx = auth.WithAuth(ctx, authCtx)
		return next(ctx, req)
	}
}

func unauthorized(id []byte, reason string) *frame.Response {
	return frame.NewErrorResponse(id, frame.CodeUnauthorized, frame.CanonicalMessage(frame.CodeUnauthorized), map[string]string{"reason": reason})
}
