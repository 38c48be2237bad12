// Package homedir resolves the current user's home directory and expands
// "~" prefixed paths, so CLI flags and config values can name files relative
// to the home directory.
package homedir

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// MustGet is Get panicking on error. Suitable for default values computed at
// startup, where a machine without a resolvable home directory cannot run
// the program anyway.
func MustGet() string {
	home, err := Get()
	if err != nil {
		panic(err)
	}
	return home
}

// Get returns the home directory of the current user. It prefers the
// environment ($HOME) and falls back to the user database, so it works both
// in containers with a bare environment and on hosts with NSS lookups.
func Get() (string, error) {
	home, envErr := os.UserHomeDir()
	if envErr == nil && home != "" {
		return home, nil
	}
	u, dbErr := user.Current()
	if dbErr == nil && u != nil && u.HomeDir != "" {
		return u.HomeDir, nil
	}
	return "", fmt.Errorf("unable to determine home directory: %w", errors.Join(envErr, dbErr))
}

// Expand rewrites a "~" or "~/..." path against the current user's home
// directory. Any other path, including "~user/...", is returned as-is;
// expanding another user's home is not supported.
func Expand(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' && path[1] != '\\' {
		return path, nil
	}
	home, err := Get()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}
