package xlog

import (
	"log/slog"
	"strings"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// Attr is an alias of slog.Attr.
type Attr = slog.Attr

// Level is an alias of slog.Level.
type Level = slog.Level

// Levels aliased from log/slog.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel converts a level name like "debug" or "WARN" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return lvl, errdefs.Newf(errdefs.ErrInvalidParameter, "unknown log level %q", s)
	}
	return lvl, nil
}
