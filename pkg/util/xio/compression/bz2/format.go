// Package bz2 registers the bzip2 compression format.
package bz2

import (
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/wuxler/stowage/pkg/util/xio/compression"
)

// FormatName is the registered name and the content encoding value.
const FormatName = "bz2"

var magicHeader = []byte("BZh")

var extensions = []string{".bz2"}

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

// Uncompress returns a bzip2 decoder for r.
func (format) Uncompress(r io.Reader, _ ...compression.Option) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}

// Compress returns a bzip2 encoder on w. The level is the block size in
// hundreds of kilobytes, 1 through 9.
func (format) Compress(w io.Writer, opts ...compression.Option) (io.WriteCloser, error) {
	options := compression.MakeOptions(opts...).CompressOptions()

	level := bzip2.DefaultCompression
	if options.Level != nil && *options.Level != 0 {
		level = *options.Level
	}
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
}
