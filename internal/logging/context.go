package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateRequestID checks that id is safe to log and propagate.
func ValidateRequestID(id string) error {
	if id == "" {
		return fmt.Errorf("request id cannot be empty")
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("request id contains invalid UTF-8")
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("request id exceeds max length %d", maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("request id contains invalid characters (must be alphanumeric, hyphen, underscore)")
	}
	return nil
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context. Invalid IDs are dropped and ctx
// is returned unchanged.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ValidateRequestID(requestID) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
