package xlog

import (
	"log/slog"
	"path/filepath"
)

// AttrReplacer rewrites each non-group attribute before it is encoded. It
// matches the slog.HandlerOptions.ReplaceAttr contract.
type AttrReplacer func(groups []string, attr slog.Attr) Attr

// ChainReplacer applies the replacers in order, each seeing the previous
// one's output.
func ChainReplacer(replacers ...AttrReplacer) AttrReplacer {
	return func(groups []string, attr slog.Attr) Attr {
		for _, repl := range replacers {
			attr = repl(groups, attr)
		}
		return attr
	}
}

// NormalizeSourceAttrReplacer trims source file paths to their basename, so
// records stay readable without leaking build machine paths.
func NormalizeSourceAttrReplacer() AttrReplacer {
	return func(_ []string, attr slog.Attr) Attr {
		if attr.Key == slog.SourceKey {
			if source, ok := attr.Value.Any().(*slog.Source); ok {
				source.File = filepath.Base(source.File)
			}
		}
		return attr
	}
}

// SuppressTimeAttrReplacer drops the top-level time attribute, which makes
// captured log output deterministic in tests.
func SuppressTimeAttrReplacer() AttrReplacer {
	return func(groups []string, attr slog.Attr) Attr {
		if attr.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		return attr
	}
}
