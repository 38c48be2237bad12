package xlog

import (
	"context"
)

// C is a short alias of FromContext.
var C = FromContext

type contextKey struct{}

// FromContext returns the Logger carried by the context, or the default
// Logger when the context carries none.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return Default()
}

// WithContext derives a context whose Logger carries the given attributes on
// top of the context's current Logger. Work scoped to one unit, one manifest
// for example, injects its identifying attributes once and every log
// downstream carries them.
func WithContext(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, contextKey{}, FromContext(ctx).With(args...))
}
