package stow

import (
	"errors"
	"io"

	godigest "github.com/opencontainers/go-digest"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// DefaultAlgorithm is the digest algorithm applied to encoded content.
var DefaultAlgorithm = godigest.SHA256

// Digest describes a fully encoded content: the digest and size of the
// encoded bytes together with the media type metadata needed to decode them
// again.
type Digest struct {
	// ContentType is the media type of the encoded bytes, e.g.
	// "application/json" or "application/x-ndjson+zstd".
	ContentType string `json:"contentType"`
	// ContentEncoding is the optional transfer encoding applied on top of
	// the content type, e.g. "zstd". Empty means identity.
	ContentEncoding string `json:"contentEncoding,omitempty"`
	// Digest is the digest of the encoded bytes.
	Digest godigest.Digest `json:"digest"`
	// Size is the number of encoded bytes.
	Size int64 `json:"size"`
}

// NewDigest computes the digest of data with the default algorithm.
func NewDigest(data []byte, contentType, contentEncoding string) Digest {
	return Digest{
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		Digest:          DefaultAlgorithm.FromBytes(data),
		Size:            int64(len(data)),
	}
}

// digestFromParts assembles a digest from separately stored algorithm and
// hex columns. Returns the empty digest when either part is missing.
func digestFromParts(algorithm, hex string) godigest.Digest {
	if algorithm == "" || hex == "" {
		return ""
	}
	return godigest.NewDigestFromEncoded(godigest.Algorithm(algorithm), hex)
}

// Algorithm returns the algorithm portion of the digest, e.g. "sha256".
func (d Digest) Algorithm() string {
	if d.Digest == "" {
		return ""
	}
	return string(d.Digest.Algorithm())
}

// Hex returns the encoded portion of the digest, e.g. "29fa...".
func (d Digest) Hex() string {
	if d.Digest == "" {
		return ""
	}
	return d.Digest.Encoded()
}

// StreamDigest is the digest of a streamed content. Complete reports whether
// the source stream was fully consumed when the digest was taken; a digest
// taken from a partially consumed stream covers only the bytes read so far.
type StreamDigest struct {
	Digest
	Complete bool `json:"complete"`
}

// StreamDigester hashes and counts bytes as they pass through. Storage
// drivers read from it like any other reader; once the source is drained the
// digest of everything that passed through is available via Digest.
//
// A StreamDigester is not safe for concurrent use.
type StreamDigester struct {
	source          io.Reader
	digester        godigest.Digester
	size            int64
	eof             bool
	contentType     string
	contentEncoding string
}

// NewStreamDigester wraps source so that all bytes read through the returned
// digester are hashed with the default algorithm.
func NewStreamDigester(source io.Reader, contentType, contentEncoding string) *StreamDigester {
	return &StreamDigester{
		source:          source,
		digester:        DefaultAlgorithm.Digester(),
		contentType:     contentType,
		contentEncoding: contentEncoding,
	}
}

// Read implements io.Reader.
func (s *StreamDigester) Read(p []byte) (int, error) {
	n, err := s.source.Read(p)
	if n > 0 {
		// hash.Hash never returns an error on Write
		s.digester.Hash().Write(p[:n])
		s.size += int64(n)
	}
	if errors.Is(err, io.EOF) {
		s.eof = true
	}
	return n, err
}

// Size returns the number of bytes read through the digester so far.
func (s *StreamDigester) Size() int64 {
	return s.size
}

// Complete reports whether the source has been drained to EOF.
func (s *StreamDigester) Complete() bool {
	return s.eof
}

// Digest returns the digest of the bytes read through the digester. Unless
// allowIncomplete is set, requesting the digest before the source reached
// EOF fails with ErrIncompleteStream.
func (s *StreamDigester) Digest(allowIncomplete bool) (StreamDigest, error) {
	if !s.eof && !allowIncomplete {
		return StreamDigest{}, errdefs.Newf(errdefs.ErrIncompleteStream,
			"digest requested before the source reached EOF (%d bytes read)", s.size)
	}
	return StreamDigest{
		Digest: Digest{
			ContentType:     s.contentType,
			ContentEncoding: s.contentEncoding,
			Digest:          s.digester.Digest(),
			Size:            s.size,
		},
		Complete: s.eof,
	}, nil
}
