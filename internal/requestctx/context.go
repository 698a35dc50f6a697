package requestctx

import (
	"context"
	"strings"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the Context.
var Key contextKey = "kereru-gateway/requestctx"

// Context captures caller identity resolved at the edge.
type Context struct {
	// Identity keys the rate limiter. It is derived from the client IP only;
	// the session id is caller-chosen and kept for log correlation.
	Identity  string
	SessionID string
	ClientIP  string
	RequestID string
}

// New resolves the identity for a request.
func New(sessionID, clientIP, requestID string) *Context {
	sessionID = strings.TrimSpace(sessionID)
	clientIP = strings.TrimSpace(clientIP)
	identity := ""
	if clientIP != "" {
		identity = "ip:" + clientIP
	}
	return &Context{
		Identity:  identity,
		SessionID: sessionID,
		ClientIP:  clientIP,
		RequestID: strings.TrimSpace(requestID),
	}
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok && rc != nil
}

// IdentityFrom returns the caller identity or "" when none is attached.
func IdentityFrom(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.Identity
	}
	return ""
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
