package logger

import (
	"context"
)

// Logger defines the interface for structured logging throughout the library.
// All log methods accept a message string followed by key-value pairs for structured fields.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info-level message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning-level message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error-level message with optional key-value pairs
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger that extracts the acquisition ID from context
	WithContext(ctx context.Context) Logger
}

type acquisitionIDKey struct{}

// ContextWithAcquisitionID returns a context carrying the given acquisition ID.
// Loggers derived through WithContext include it as the "acquisition_id"
// field, correlating every log line of one request/fallback/release cycle.
func ContextWithAcquisitionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, acquisitionIDKey{}, id)
}

// AcquisitionIDFromContext extracts the acquisition ID from the context,
// or returns an empty string when none is set.
func AcquisitionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(acquisitionIDKey{}).(string); ok {
		return id
	}
	return ""
}
