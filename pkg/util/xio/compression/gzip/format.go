// Package gzip registers the gzip compression format.
package gzip

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/wuxler/stowage/pkg/util/xio/compression"
)

// FormatName is the registered name and the content encoding value.
const FormatName = "gzip"

// RFC 1952, section 2.3.1.
var magicHeader = []byte{0x1f, 0x8b}

var extensions = []string{".gz", ".tgz"}

func init() {
	compression.MustRegisterFormat(format{})
}

type format struct{}

func (format) Name() string {
	return FormatName
}

func (format) Match(r io.Reader) (bool, error) {
	return compression.MatchMagic(r, magicHeader)
}

func (format) MatchFilename(filename string) bool {
	return compression.MatchFilenameExtension(filename, extensions...)
}

// Uncompress returns a gzip decoder for r. With the multithread option the
// decoder reads ahead and decompresses blocks in parallel.
func (format) Uncompress(r io.Reader, opts ...compression.Option) (io.ReadCloser, error) {
	options := compression.MakeOptions(opts...).UncompressOptions()
	if options.Multithread {
		return pgzip.NewReader(r)
	}
	return gzip.NewReader(r)
}

// Compress returns a gzip encoder on w. A nil level means the default; zero
// is treated as unset as well since storing payloads uncompressed under a
// gzip encoding would be pointless.
func (format) Compress(w io.Writer, opts ...compression.Option) (io.WriteCloser, error) {
	options := compression.MakeOptions(opts...).CompressOptions()

	level := gzip.DefaultCompression
	if options.Level != nil && *options.Level != 0 {
		level = *options.Level
	}
	if options.Multithread {
		return pgzip.NewWriterLevel(w, level)
	}
	return gzip.NewWriterLevel(w, level)
}
