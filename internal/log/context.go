package log

import (
	"context"
	"maps"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// TraceIDKey holds the request trace id, both in context.Context and in gin.Context.
	TraceIDKey ContextKey = "trace_id"
	// LogFieldsKey holds additional structured fields for every log line of a request.
	LogFieldsKey ContextKey = "log_fields"
)

// LogFields represents a collection of structured log fields.
type LogFields map[string]any

// WithTraceID stores the trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceID returns the trace id stored in ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// WithFields merges fields into the ones already carried by ctx; new values win.
func WithFields(ctx context.Context, fields LogFields) context.Context {
	merged := make(LogFields, len(fields))
	maps.Copy(merged, GetLogFields(ctx))
	maps.Copy(merged, fields)
	return context.WithValue(ctx, LogFieldsKey, merged)
}

// GetLogFields retrieves log fields from the context.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(LogFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}
