package rawcodec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xcontext"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/util/xio/compression"
)

// chunkSize bounds the chunks yielded when deserializing a raw stream.
const chunkSize = 32 * 1024

// StreamSerializer is the passthrough stream codec. The stream is the
// concatenation of the chunk values; chunk boundaries are not preserved.
type StreamSerializer struct {
	opts *options
}

// NewStream returns the passthrough stream codec.
func NewStream(opts ...Option) *StreamSerializer {
	return &StreamSerializer{opts: makeOptions(opts...)}
}

// Name implements stow.Component.
func (s *StreamSerializer) Name() string {
	return StreamName
}

// Types implements stow.StreamSerializer.
func (s *StreamSerializer) Types() []reflect.Type {
	return s.opts.types
}

// ContentTypes implements stow.StreamSerializer.
func (s *StreamSerializer) ContentTypes() []string {
	return []string{MediaType}
}

// SerializeStream implements stow.StreamSerializer. Chunks are written
// lazily as the consumer reads; each value must be a []byte or an io.Reader.
func (s *StreamSerializer) SerializeStream(ctx context.Context, values iter.Seq[any]) (*stow.StreamEnvelope, error) {
	if values == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "nil value stream")
	}
	format, err := s.opts.compressionFormat()
	if err != nil {
		return nil, err
	}
	encoding := ""
	if format != nil {
		encoding = format.Name()
	}
	pr, pw := io.Pipe()
	go func() {
		var dst io.Writer = pw
		var compressor io.WriteCloser
		if format != nil {
			// Streams are unbounded, so prefer the parallel encoder of
			// formats that ship one.
			wc, err := format.Compress(pw, s.opts.compressOptions(compression.WithMultithread(true))...)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("compress with %q: %w", format.Name(), err))
				return
			}
			compressor = wc
			dst = wc
		}
		for v, err := range values {
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := ctx.Err(); err != nil {
				pw.CloseWithError(context.Cause(ctx))
				return
			}
			chunk, err := payloadBytes(v)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := dst.Write(chunk); err != nil {
				pw.CloseWithError(fmt.Errorf("write chunk: %w", err))
				return
			}
		}
		if compressor != nil {
			if err := compressor.Close(); err != nil {
				pw.CloseWithError(fmt.Errorf("compress with %q: %w", format.Name(), err))
				return
			}
		}
		pw.Close()
	}()
	return &stow.StreamEnvelope{
		DataStream:      xio.NewCanceledReadCloser(ctx, pr),
		ContentType:     MediaType,
		ContentEncoding: encoding,
	}, nil
}

// DeserializeStream implements stow.StreamSerializer and yields []byte
// chunks of at most 32 KiB. The returned sequence owns the envelope stream
// and closes it when iteration stops. Content encoding resolution follows
// the same rules as Serializer.Deserialize.
func (s *StreamSerializer) DeserializeStream(ctx context.Context, envelope *stow.StreamEnvelope) (iter.Seq[any], error) {
	if envelope == nil || envelope.DataStream == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "nil envelope stream")
	}
	stream := xio.NewCanceledReadCloser(ctx, envelope.DataStream)
	reader, decompressor, err := s.uncompressStream(stream, envelope.ContentEncoding)
	if err != nil {
		xio.CloseAndSkipError(stream)
		return nil, err
	}
	return func(yield func(any, error) bool) {
		defer xio.CloseAndSkipError(stream)
		if decompressor != nil {
			defer xio.CloseAndSkipError(decompressor)
		}
		for {
			// A decompressor may hold buffered chunks after the stream is
			// torn down, stop yielding them once the context is done.
			if err := xcontext.NonBlockingCheck(ctx, "reading stream aborted"); err != nil {
				yield(nil, err)
				return
			}
			chunk := make([]byte, chunkSize)
			n, err := reader.Read(chunk)
			if n > 0 {
				if !yield(chunk[:n:n], nil) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("read %s payload: %w", MediaType, err))
				}
				return
			}
		}
	}, nil
}

func (s *StreamSerializer) uncompressStream(stream io.Reader, encoding string) (io.Reader, io.ReadCloser, error) {
	if encoding != "" {
		format, err := compression.GetFormat(encoding)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve content encoding %q: %w", encoding, err)
		}
		rc, err := format.Uncompress(stream)
		if err != nil {
			return nil, nil, fmt.Errorf("uncompress with %q: %w", format.Name(), err)
		}
		return rc, rc, nil
	}
	if s.opts.compression == "" {
		return stream, nil, nil
	}
	format, replay, err := compression.DetectReader(stream)
	if err != nil {
		if errors.Is(err, compression.ErrNoMatch) {
			return replay, nil, nil
		}
		return nil, nil, fmt.Errorf("sniff compression format: %w", err)
	}
	rc, err := format.Uncompress(replay)
	if err != nil {
		return nil, nil, fmt.Errorf("uncompress with %q: %w", format.Name(), err)
	}
	return rc, rc, nil
}
