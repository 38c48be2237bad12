package xio

import (
	"io"
	"strings"

	"github.com/wuxler/stowage/pkg/xlog"
)

// CloseAndSkipError closes c, nil-safe, and discards the error. Use it where
// the close error carries no information, a drained read stream for example.
func CloseAndSkipError(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// CloseAndLogError closes c and logs a failed close at warn level with the
// optional message parts prefixed. Use it in defers where the error matters
// but cannot change the outcome anymore.
func CloseAndLogError(c io.Closer, messages ...string) {
	if c == nil {
		return
	}
	err := c.Close()
	if err == nil {
		return
	}
	if msg := strings.Join(messages, ": "); msg != "" {
		xlog.Warnf("unable to close: %s: %+v", msg, err)
		return
	}
	xlog.Warnf("unable to close: %+v", err)
}
