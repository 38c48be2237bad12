package xlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"
)

// MultiHandler fans records out to several handlers, used to pair a text
// handler on the standard stream with a JSON handler on the log file.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers: handlers}
}

type multiHandler struct {
	handlers []slog.Handler
}

// Enabled implements slog.Handler, true when any handler is enabled.
func (h *multiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for i := range h.handlers {
		if h.handlers[i].Enabled(ctx, l) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler. Every enabled handler receives its own
// clone of the record, a panicking handler does not starve the others.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for i := range h.handlers {
		if !h.handlers[i].Enabled(ctx, r.Level) {
			continue
		}
		err := try(func() error {
			return h.handlers[i].Handle(ctx, r.Clone())
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return MultiHandler(lo.Map(h.handlers, func(h slog.Handler, _ int) slog.Handler {
		return h.WithAttrs(attrs)
	})...)
}

// WithGroup implements slog.Handler.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	return MultiHandler(lo.Map(h.handlers, func(h slog.Handler, _ int) slog.Handler {
		return h.WithGroup(name)
	})...)
}
