// Package zstd registers the Zstandard compression format.
package zstd

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/util/xio/compression"
)

// FormatName is the registered name and the content encoding value.
const FormatName = "zstd"

// Frame magic number, RFC 8878 section 3.1.1.
var magicHeader = []byte{0x28, 0xb5, 0x2f, 0xfd}

var extensions = []string{".zst"}

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

// Uncompress returns a zstd decoder for r. The decoder type has no plain
// Close, so it is wrapped to fit io.ReadCloser while keeping its WriteTo
// fast path reachable.
func (format) Uncompress(r io.Reader, _ ...compression.Option) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return xio.WrapReader(zr, func() error {
		zr.Close()
		return nil
	}), nil
}

// Compress returns a zstd encoder on w. Levels are given in the zstd CLI
// scale and mapped onto the encoder speeds the library implements. Without
// the multithread option the encoder is pinned to one goroutine so memory
// stays proportional to a single window.
func (format) Compress(w io.Writer, opts ...compression.Option) (io.WriteCloser, error) {
	options := compression.MakeOptions(opts...).CompressOptions()

	eopts := []zstd.EOption{}
	if options.Level != nil && *options.Level > 0 {
		eopts = append(eopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(*options.Level)))
	}
	if !options.Multithread {
		eopts = append(eopts, zstd.WithEncoderConcurrency(1))
	}
	return zstd.NewWriter(w, eopts...)
}
