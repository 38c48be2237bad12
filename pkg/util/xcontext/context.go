// Package xcontext carries small context helpers shared across packages.
package xcontext

import (
	"context"
	"fmt"
)

// NonBlockingCheck polls the context without blocking and reports its error,
// prefixed with msg, once the context is done. Loops that produce values
// from buffered sources call this per iteration so cancellation is observed
// even when no further I/O happens.
func NonBlockingCheck(ctx context.Context, msg string) error {
	select {
	case <-ctx.Done():
		if msg == "" {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", msg, ctx.Err())
	default:
		return nil
	}
}
