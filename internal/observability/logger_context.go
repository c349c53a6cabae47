// Package observability carries request- and session-scoped logging state through contexts.
package observability

import (
	"context"
	"log/slog"
)

type loggerContextKey struct{}

// requestIDContextKey stores the originating HTTP request_id so that the
// worker can correlate session logs with the request that created the session.
type requestIDContextKey struct{}

// ContextWithLogger attaches a non-nil logger to the context.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// LoggerFromContext returns the logger stored in the context or the default
// slog logger when none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// WithSession returns a context whose logger carries the session_id attribute.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return ContextWithLogger(ctx, LoggerFromContext(ctx).With(slog.String("session_id", sessionID)))
}

// WithPipeline returns a context whose logger carries the pipeline attribute.
func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return ContextWithLogger(ctx, LoggerFromContext(ctx).With(slog.String("pipeline", pipeline)))
}

// ContextWithRequestID stores a non-empty request_id in the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext retrieves the request_id from the context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDContextKey{}).(string)
	return rid
}
