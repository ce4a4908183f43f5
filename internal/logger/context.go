package logger

import (
	"context"
	"sync"
)

type contextKey int

const loggerKey contextKey = iota

// WithContext stores l in ctx. Request handlers read it back with FromContext.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithFields stores a logger carrying fields on top of the one already in ctx.
func WithFields(ctx context.Context, fields ...Field) context.Context {
	return WithContext(ctx, FromContext(ctx).With(fields...))
}

// FromContext returns the logger stored in ctx. Without one it returns a
// shared warn-level stderr logger tagged component=unscoped.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return unscoped()
}

var unscoped = sync.OnceValue(func() Logger {
	l, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	if err != nil {
		return NewNop()
	}
	return l.With(Component("unscoped"))
})
