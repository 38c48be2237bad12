// Package xos annotates files with extended attributes on filesystems that
// support them. Derived from moby's pkg/system xattr helpers.
package xos

// XattrError is an error returned by xattr operations.
type XattrError struct {
	Op   string
	Attr string
	Path string
	Err  error
}

func (e *XattrError) Error() string { return e.Op + " " + e.Attr + " " + e.Path + ": " + e.Err.Error() }

func (e *XattrError) Unwrap() error { return e.Err }
