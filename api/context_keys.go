package api

import (
	"context"
	"time"
)

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

// Context keys set by the middleware stack
const (
	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyTraceStart stores the request start time (time.Time)
	ContextKeyTraceStart contextKey = "trace_start"

	// ContextKeyBody stores the parsed request body (*requestBody)
	ContextKeyBody contextKey = "body"

	// ContextKeyErrorHandler stores the terminal error handler (ErrorHandler)
	ContextKeyErrorHandler contextKey = "error_handler"
)

// WithRequestID returns a context carrying the request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestID returns the request ID stored by the logger middleware, or ""
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithTraceStart returns a context carrying the request start time
func WithTraceStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyTraceStart, start)
}

// TraceStart returns the request start time, if recorded
func TraceStart(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(ContextKeyTraceStart).(time.Time)
	return start, ok
}
