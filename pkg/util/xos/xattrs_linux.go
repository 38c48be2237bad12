//go:build linux

package xos

import (
	"golang.org/x/sys/unix"
)

// Lsetxattr sets the extended attribute attr on path to data. The path is
// not followed when it is a symlink.
func Lsetxattr(path string, attr string, data []byte, flags int) error {
	if err := unix.Lsetxattr(path, attr, data, flags); err != nil {
		return &XattrError{Op: "lsetxattr", Attr: attr, Path: path, Err: err}
	}
	return nil
}
