// Package xlog is a thin layer over log/slog: printf-style helpers, a
// process-wide default logger, context propagation and config-driven
// handler construction with optional rotated file output.
package xlog

import (
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(NewConfig()))
}

// Default returns the process-wide Logger.
func Default() *Logger { return defaultLogger.Load() }

// SetDefault replaces the process-wide Logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Debug logs at LevelDebug on the default logger.
func Debug(msg string, args ...any) {
	Default().AddCallerSkip(1).Debug(msg, args...)
}

// Debugf logs at LevelDebug on the default logger with a format string.
func Debugf(format string, args ...any) {
	Default().AddCallerSkip(1).Debugf(format, args...)
}

// Info logs at LevelInfo on the default logger.
func Info(msg string, args ...any) {
	Default().AddCallerSkip(1).Info(msg, args...)
}

// Infof logs at LevelInfo on the default logger with a format string.
func Infof(format string, args ...any) {
	Default().AddCallerSkip(1).Infof(format, args...)
}

// Warn logs at LevelWarn on the default logger.
func Warn(msg string, args ...any) {
	Default().AddCallerSkip(1).Warn(msg, args...)
}

// Warnf logs at LevelWarn on the default logger with a format string.
func Warnf(format string, args ...any) {
	Default().AddCallerSkip(1).Warnf(format, args...)
}

// Error logs at LevelError on the default logger.
func Error(msg string, args ...any) {
	Default().AddCallerSkip(1).Error(msg, args...)
}

// Errorf logs at LevelError on the default logger with a format string.
func Errorf(format string, args ...any) {
	Default().AddCallerSkip(1).Errorf(format, args...)
}
