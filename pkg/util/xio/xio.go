// Package xio carries the io plumbing shared by codecs and storage drivers:
// close helpers, context-aware and rewindable readers, and byte-rate
// measurement.
package xio

import (
	"errors"
	"io"
	"reflect"
)

// IsNil reports whether i is nil or an interface holding a nil pointer.
func IsNil(i any) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// ReadAtMost reads up to n bytes from the reader. The returned slice is
// shorter than n when the stream ends early; io.EOF and io.ErrUnexpectedEOF
// are not treated as errors.
func ReadAtMost(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:read], nil
}
