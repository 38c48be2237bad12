package xlog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// skip [runtime.Callers, Logger.log, exported helper] to annotate the
// caller of the helper.
const defaultCallerSkip = 3

// New builds a Logger emitting through the handler the configuration
// describes.
func New(c Config) *Logger {
	return &Logger{handler: c.BuildHandler(), callerSkip: defaultCallerSkip}
}

// Logger adds printf-style helpers and caller annotation on top of a
// slog.Handler. Loggers are immutable, With and AddCallerSkip return copies.
type Logger struct {
	handler    slog.Handler
	callerSkip int
}

// Handler returns the underlying slog.Handler.
func (l *Logger) Handler() slog.Handler { return l.handler }

// With returns a Logger that attaches the given attributes to every record.
// Arguments pair up key-value like slog.Logger.With.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	c := l.clone()
	c.handler = l.handler.WithAttrs(argsToAttrSlice(args))
	return c
}

// AddCallerSkip returns a Logger skipping skip more stack frames when
// annotating the call site. Helpers that forward to a Logger use it so
// records point at their caller.
func (l *Logger) AddCallerSkip(skip int) *Logger {
	c := l.clone()
	c.callerSkip += skip
	return c
}

// Enabled reports whether records at the level would be emitted.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.handler.Enabled(ctx, level)
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Debugf logs at LevelDebug with a format string.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Infof logs at LevelInfo with a format string.
func (l *Logger) Infof(format string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Warnf logs at LevelWarn with a format string.
func (l *Logger) Warnf(format string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// Errorf logs at LevelError with a format string.
func (l *Logger) Errorf(format string, args ...any) {
	l.log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

// log builds and emits one record. It must be called directly by an
// exported helper, the caller skip assumes a fixed depth.
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(l.callerSkip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	if ctx == nil {
		ctx = context.Background()
	}
	_ = l.handler.Handle(ctx, r) //nolint:errcheck
}
