package logger

import "context"

// nopLogger discards every log entry. Used as the default when a component
// is constructed without an explicit logger, and in tests.
type nopLogger struct{}

// NewNop returns a Logger that discards all output.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}

func (nopLogger) Info(string, ...any) {}

func (nopLogger) Warn(string, ...any) {}

func (nopLogger) Error(string, ...any) {}

func (n nopLogger) With(...any) Logger { return n }

func (n nopLogger) WithContext(context.Context) Logger { return n }
