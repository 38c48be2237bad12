// Package compression maintains a registry of payload compression formats.
// Codecs pipe envelope data through a format on the write path and record
// its name as the content encoding; on the read path the encoding is looked
// up again, or the payload is sniffed by magic header when the recorded
// encoding has been lost.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/wuxler/stowage/pkg/util/xio"
)

// ErrNoMatch is returned when none of the registered formats matches.
var ErrNoMatch = errors.New("no compression format matched")

// Format is a named compression scheme. Implementations register themselves
// with MustRegisterFormat, usually from an init function, and must be safe
// for concurrent use.
type Format interface {
	// Name returns the registered name of the format. It doubles as the
	// content encoding recorded on envelopes.
	Name() string

	// Match reports whether the stream begins with the format's signature.
	// A stream too short to hold the signature is not a match.
	Match(r io.Reader) (bool, error)

	// MatchFilename reports whether the filename carries one of the
	// format's extensions.
	MatchFilename(filename string) bool

	// Uncompress wraps r with the format's decoder.
	Uncompress(r io.Reader, opts ...Option) (io.ReadCloser, error)

	// Compress wraps w with the format's encoder. The returned writer must
	// be closed to flush the trailing frame.
	Compress(w io.Writer, opts ...Option) (io.WriteCloser, error)
}

// MatchMagic reports whether r begins with the given magic bytes. Short
// streams are not a match and not an error, so callers can probe tiny
// payloads without special cases.
func MatchMagic(r io.Reader, magic []byte) (bool, error) {
	buf, err := xio.ReadAtMost(r, len(magic))
	if err != nil {
		return false, err
	}
	return bytes.Equal(buf, magic), nil
}

// MatchFilenameExtension reports whether the filename ends with any of the
// given extensions, compared case-insensitively.
func MatchFilenameExtension(filename string, extensions ...string) bool {
	ext := filepath.Ext(filepath.Base(filename))
	return lo.SomeBy(extensions, func(s string) bool {
		return strings.EqualFold(ext, s)
	})
}

// DetectReader probes the stream against every registered format and returns
// the first match. Formats are tried in name order, so the result is stable
// when signatures overlap.
//
// The returned reader replays the bytes consumed while probing and must be
// used in place of the input from then on. It is non-nil even on error, in
// particular when ErrNoMatch is returned the caller can still consume the
// stream as plain data.
func DetectReader(input io.Reader) (Format, io.Reader, error) {
	rewind := xio.NewRewindReader(input)
	var errs []error
	for _, format := range registeredFormats() {
		ok, err := matchRewind(format, rewind)
		if err != nil {
			errs = append(errs, fmt.Errorf("match against %q: %w", format.Name(), err))
			continue
		}
		if ok {
			return format, rewind.Reader(), nil
		}
	}
	return nil, rewind.Reader(), errors.Join(append([]error{ErrNoMatch}, errs...)...)
}

func matchRewind(format Format, r *xio.RewindReader) (bool, error) {
	defer r.Rewind()
	return format.Match(r)
}

// DetectFilename returns the first registered format whose extensions match
// the filename, or ErrNoMatch.
func DetectFilename(filename string) (Format, error) {
	for _, format := range registeredFormats() {
		if format.MatchFilename(filename) {
			return format, nil
		}
	}
	return nil, ErrNoMatch
}
