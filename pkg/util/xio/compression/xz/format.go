// Package xz registers the xz compression format. Decoding goes through the
// faster therootcompany reader, encoding through ulikunitz/xz which is the
// only pure Go writer.
package xz

import (
	"io"

	fastxz "github.com/therootcompany/xz"
	"github.com/ulikunitz/xz"

	"github.com/wuxler/stowage/pkg/util/xio/compression"
)

// FormatName is the registered name and the content encoding value.
const FormatName = "xz"

// Stream header magic, xz file format spec section 2.1.1.1.
var magicHeader = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

var extensions = []string{".xz"}

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

// Uncompress returns an xz decoder for r with the default dictionary limit.
func (format) Uncompress(r io.Reader, _ ...compression.Option) (io.ReadCloser, error) {
	xr, err := fastxz.NewReader(r, 0)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), nil
}

// Compress returns an xz encoder on w. The writer has no level knob, so
// options are ignored.
func (format) Compress(w io.Writer, _ ...compression.Option) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}
