package compression

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

var (
	mu      sync.RWMutex
	formats = make(map[string]Format)
)

// RegisterFormat adds a format to the registry under its cleaned name.
// Registering the same name twice is an error.
func RegisterFormat(format Format) error {
	mu.Lock()
	defer mu.Unlock()

	name := cleanFormatName(format.Name())
	if _, ok := formats[name]; ok {
		return fmt.Errorf("compression format %q is already registered", name)
	}
	formats[name] = format
	return nil
}

// MustRegisterFormat is RegisterFormat that panics on a duplicate name. The
// bundled formats call it from their init functions.
func MustRegisterFormat(format Format) {
	if err := RegisterFormat(format); err != nil {
		panic(err)
	}
}

// GetFormat returns the format registered under the given name. The error
// for an unknown name lists the registered names.
func GetFormat(name string) (Format, error) {
	mu.RLock()
	defer mu.RUnlock()

	if format, ok := formats[cleanFormatName(name)]; ok {
		return format, nil
	}
	known := lo.Keys(formats)
	sort.Strings(known)
	return nil, fmt.Errorf("unknown compression format %q, registered: %s",
		name, strings.Join(known, ", "))
}

// MustGetFormat is GetFormat that panics on an unknown name.
func MustGetFormat(name string) Format {
	format, err := GetFormat(name)
	if err != nil {
		panic(err)
	}
	return format
}

// registeredFormats snapshots the registry ordered by name.
func registeredFormats() []Format {
	mu.RLock()
	defer mu.RUnlock()

	names := lo.Keys(formats)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Format {
		return formats[name]
	})
}

// Leading dots are trimmed so an extension like ".gz" resolves the same as
// the bare name.
func cleanFormatName(name string) string {
	return strings.Trim(strings.ToLower(name), ".")
}
