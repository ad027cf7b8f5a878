package mcp

import (
	"context"
	"crypto/subtle"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const adminKey contextKey = iota

// isAdmin reports whether the caller may edit.
func isAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}

// adminMiddleware marks requests carrying the admin secret as a bearer token.
// Requests without it still reach read-only tools.
func adminMiddleware(secret string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return next(ctx, method, req)
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
				ctx = context.WithValue(ctx, adminKey, true)
			}
			return next(ctx, method, req)
		}
	}
}

// noAuthMiddleware grants edit rights to every caller.
func noAuthMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(context.WithValue(ctx, adminKey, true), method, req)
		}
	}
}
