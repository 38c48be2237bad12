//go:build !linux

package xos

import "syscall"

// Lsetxattr is not supported on platforms other than linux.
func Lsetxattr(path string, attr string, data []byte, flags int) error {
	return &XattrError{Op: "lsetxattr", Attr: attr, Path: path, Err: syscall.ENOTSUP}
}
