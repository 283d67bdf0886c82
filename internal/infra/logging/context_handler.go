package logging

import (
	"context"
	"log/slog"

	context_ "github.com/mkrupp/tokengate/internal/infra/context"
)

// ContextHandler decorates every record with the request trace ID and
// the authenticated principal carried by the context, if any.
type ContextHandler struct {
	next slog.Handler
}

var _ slog.Handler = (*ContextHandler)(nil)

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Handle implements slog.Handler.Handle.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}

	//nolint:wrapcheck
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ContextHandler) WithGroup(name string) Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

// Enabled implements slog.Handler.Enabled.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		attrs = append(attrs, slog.Group("trace", slog.String("id", traceID)))
	}

	if principal, ok := context_.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.Group("auth", slog.String("username", principal.Username)))
	}

	return attrs
}
