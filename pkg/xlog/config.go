package xlog

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewConfig returns the default configuration: info level text logs on
// stdout with source locations trimmed to their file basename, no log file.
func NewConfig() Config {
	return Config{
		Level:        slog.LevelInfo,
		AddSource:    true,
		AttrReplacer: NormalizeSourceAttrReplacer(),
		StdFormat:    "text",
		StdWriter:    os.Stdout,
		MaxSize:      30,
	}
}

// Config describes where logs go and how they are encoded.
type Config struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// AddSource records the file and line of the logging call site.
	AddSource bool
	// AttrReplacer rewrites attributes before they are encoded.
	AttrReplacer AttrReplacer

	// StdFormat is the standard stream encoding, "text" or "json".
	StdFormat string
	// StdWriter receives the standard stream.
	StdWriter io.Writer

	// Path, when set, additionally writes JSON records to the file,
	// rotated by size.
	Path string
	// MaxSize is the size in megabytes a log file may reach before it is
	// rotated.
	MaxSize int
	// MaxAge is the number of days rotated files are kept, zero keeps them
	// forever.
	MaxAge int
	// MaxBackups is the number of rotated files kept, zero keeps them all.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// BuildHandler assembles the slog.Handler the configuration describes. The
// file output is always JSON so it stays machine-readable regardless of the
// standard stream format.
func (c *Config) BuildHandler() slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource:   c.AddSource,
		Level:       c.Level,
		ReplaceAttr: c.AttrReplacer,
	}
	fw := c.fileWriter()

	if c.StdFormat == "json" {
		w := c.StdWriter
		if fw != nil {
			w = io.MultiWriter(c.StdWriter, fw)
		}
		return slog.NewJSONHandler(w, opts)
	}

	stdHandler := slog.NewTextHandler(c.StdWriter, opts)
	if fw == nil {
		return stdHandler
	}
	return MultiHandler(stdHandler, slog.NewJSONHandler(fw, opts))
}

func (c *Config) fileWriter() io.Writer {
	if c.Path == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSize,
		MaxAge:     c.MaxAge,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}
