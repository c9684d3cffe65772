// Package requestcontext carries request-scoped values (request id, request
// time, acting authority) without depending on net/http. Middleware sets
// them; services and stores read them.
//
//	ctx = requestcontext.WithTime(ctx, fixedTime) // tests and CLI commands
package requestcontext

import (
	"context"
	"time"
)

type (
	authorityIDKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyAuthorityID = authorityIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Authority (the operator allowed to unlock identities and review anomalies)
// -----------------------------------------------------------------------------

// AuthorityID retrieves the authenticated authority from the context.
// Returns "" if not set.
func AuthorityID(ctx context.Context) string {
	if a, ok := ctx.Value(ContextKeyAuthorityID).(string); ok {
		return a
	}
	return ""
}

// WithAuthorityID injects an authority ID into the context.
func WithAuthorityID(ctx context.Context, authorityID string) context.Context {
	return context.WithValue(ctx, ContextKeyAuthorityID, authorityID)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now returns the time captured when the request started, or the wall clock
// for background loops and CLI commands.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
