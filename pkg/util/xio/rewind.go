package xio

import (
	"bytes"
	"io"
)

// NewRewindReader wraps r so the bytes read through it can be replayed.
// Returns nil when r is nil. The buffering approach is loosely based on the
// Connection type from https://github.com/mholt/caddy-l4.
func NewRewindReader(r io.Reader) *RewindReader {
	if IsNil(r) {
		return nil
	}
	return &RewindReader{
		raw: r,
		buf: new(bytes.Buffer),
	}
}

// RewindReader records everything read through it, so format sniffing can
// consume the head of a stream several times. Rewind replays the recorded
// bytes; Reader hands the stream on once sniffing is over.
type RewindReader struct {
	raw       io.Reader
	buf       *bytes.Buffer
	bufReader io.Reader
}

func (rr *RewindReader) Read(p []byte) (int, error) {
	if rr == nil {
		panic("read from a nil RewindReader")
	}

	// Serve replayed bytes first. The underlying stream is only touched
	// once the replay is exhausted.
	var n int
	if rr.bufReader != nil {
		read, err := rr.bufReader.Read(p)
		if err == io.EOF {
			rr.bufReader = nil
		} else if err != nil {
			return read, err
		}
		if read == len(p) {
			return read, nil
		}
		n = read
	}

	nr, err := rr.raw.Read(p[n:])
	if nr > 0 {
		// Everything read from the stream is recorded, also on error, so a
		// later Rewind stays complete.
		if _, errw := rr.buf.Write(p[n : n+nr]); errw != nil {
			return n, errw
		}
	}
	return n + nr, err
}

// Rewind restarts reading at the first recorded byte.
func (rr *RewindReader) Rewind() {
	if rr == nil {
		return
	}
	rr.bufReader = bytes.NewReader(rr.buf.Bytes())
}

// Reader returns a plain reader serving the recorded bytes followed by the
// rest of the stream. Reads through it are no longer recorded, so it ends
// the rewind phase. A seekable source is rewound in place and returned
// directly.
func (rr *RewindReader) Reader() io.Reader {
	if rr == nil {
		return nil
	}
	if s, ok := rr.raw.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err == nil {
			return rr.raw
		}
	}
	return io.MultiReader(bytes.NewReader(rr.buf.Bytes()), rr.raw)
}
