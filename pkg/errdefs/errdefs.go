// Package errdefs defines the sentinel errors shared across the module and
// the helpers that attach them to concrete failures. A sentinel classifies
// an error, the joined message describes the instance: callers branch with
// errors.Is against the sentinel and keep the message for humans.
package errdefs

import (
	"errors"
	"fmt"
)

// Newf classifies a formatted message under the base sentinel. The result
// satisfies errors.Is(err, base).
func Newf(base error, format string, args ...any) error {
	return errors.Join(base, fmt.Errorf(format, args...))
}

// NewE classifies err under the base sentinel. A nil err, or one already
// carrying the sentinel, passes through unchanged so repeated classification
// does not stack wrappers.
func NewE(base error, err error) error {
	if err == nil || errors.Is(err, base) {
		return err
	}
	return errors.Join(base, err)
}
