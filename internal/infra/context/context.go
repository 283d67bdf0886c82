// Package context carries request-scoped values between the HTTP transport,
// the services and the log handlers.
package context

import (
	"context"

	"github.com/mkrupp/tokengate/internal/domain"
)

type (
	traceIDKey   struct{}
	principalKey struct{}
)

// WithTraceID returns a copy of ctx carrying the request trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID set by WithTraceID.
// An empty trace ID counts as absent.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, _ := ctx.Value(traceIDKey{}).(string)

	return traceID, traceID != ""
}

// WithPrincipal returns a copy of ctx carrying the authorized principal.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal stored by the authorizing middleware.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(domain.Principal)

	return principal, ok
}
