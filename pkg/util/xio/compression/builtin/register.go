// Package builtin wires every bundled compression format into the registry.
// Import it for side effects anywhere content encodings may need resolving.
package builtin

import (
	_ "github.com/wuxler/stowage/pkg/util/xio/compression/bz2"
	_ "github.com/wuxler/stowage/pkg/util/xio/compression/gzip"
	_ "github.com/wuxler/stowage/pkg/util/xio/compression/xz"
	_ "github.com/wuxler/stowage/pkg/util/xio/compression/zstd"
)
