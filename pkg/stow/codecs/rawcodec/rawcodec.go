// Package rawcodec implements passthrough codecs for byte payloads. Values
// are stored exactly as given, optionally piped through a registered
// compression format which is recorded as the content encoding.
package rawcodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/util/xio/compression"

	_ "github.com/wuxler/stowage/pkg/util/xio/compression/builtin" // register built-in compression formats
)

const (
	// Name is the component name of the value codec.
	Name = "raw@v1"
	// StreamName is the component name of the stream codec.
	StreamName = "raw-stream@v1"
	// MediaType is the content type of raw payloads.
	MediaType = "application/octet-stream"
)

// Option configures the codecs.
type Option func(*options)

type options struct {
	types       []reflect.Type
	compression string
	level       *int
}

// WithTypes adds runtime types the codec claims during type inference, on
// top of the default claim for []byte.
func WithTypes(types ...reflect.Type) Option {
	return func(o *options) {
		o.types = append(o.types, types...)
	}
}

// WithCompression pipes payloads through the named compression format and
// records the format name as the content encoding. The name must match a
// format registered with the compression package, such as "gzip" or "zstd".
func WithCompression(name string) Option {
	return func(o *options) {
		o.compression = name
	}
}

// WithCompressionLevel sets the encoder level in the format's native scale.
// Without it each format uses its default.
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		o.level = &level
	}
}

func makeOptions(opts ...Option) *options {
	o := &options{
		types: []reflect.Type{reflect.TypeOf([]byte(nil))},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// compressionFormat resolves the configured compression format, or nil when
// payloads are stored uncompressed.
func (o *options) compressionFormat() (compression.Format, error) {
	if o.compression == "" {
		return nil, nil
	}
	format, err := compression.GetFormat(o.compression)
	if err != nil {
		return nil, fmt.Errorf("resolve compression format: %w", err)
	}
	return format, nil
}

func (o *options) compressOptions(extra ...compression.Option) []compression.Option {
	opts := make([]compression.Option, 0, len(extra)+1)
	if o.level != nil {
		opts = append(opts, compression.WithLevel(*o.level))
	}
	return append(opts, extra...)
}

// Serializer is the passthrough value codec for byte payloads.
type Serializer struct {
	opts *options
}

// New returns the passthrough value codec.
func New(opts ...Option) *Serializer {
	return &Serializer{opts: makeOptions(opts...)}
}

// Name implements stow.Component.
func (s *Serializer) Name() string {
	return Name
}

// Types implements stow.Serializer.
func (s *Serializer) Types() []reflect.Type {
	return s.opts.types
}

// ContentTypes implements stow.Serializer.
func (s *Serializer) ContentTypes() []string {
	return []string{MediaType}
}

// Serialize implements stow.Serializer. The value must be a []byte or an
// io.Reader; readers are drained into the envelope.
func (s *Serializer) Serialize(v any) (*stow.Envelope, error) {
	data, err := payloadBytes(v)
	if err != nil {
		return nil, err
	}
	format, err := s.opts.compressionFormat()
	if err != nil {
		return nil, err
	}
	encoding := ""
	if format != nil {
		compressed, err := compressBytes(format, data, s.opts.compressOptions()...)
		if err != nil {
			return nil, err
		}
		data = compressed
		encoding = format.Name()
	}
	return &stow.Envelope{Data: data, ContentType: MediaType, ContentEncoding: encoding}, nil
}

// Deserialize implements stow.Serializer and returns the payload as a
// []byte. A non-empty content encoding on the envelope names the format the
// payload is uncompressed with. When the encoding is empty but the codec was
// built with a compression option, the payload is sniffed by magic header so
// that envelopes with degraded metadata still decode; codecs without a
// compression option never sniff and pass the bytes through untouched.
func (s *Serializer) Deserialize(envelope *stow.Envelope) (any, error) {
	if envelope.ContentEncoding != "" {
		format, err := compression.GetFormat(envelope.ContentEncoding)
		if err != nil {
			return nil, fmt.Errorf("resolve content encoding %q: %w", envelope.ContentEncoding, err)
		}
		return uncompressBytes(format, bytes.NewReader(envelope.Data))
	}
	if s.opts.compression == "" {
		return envelope.Data, nil
	}
	format, replay, err := compression.DetectReader(bytes.NewReader(envelope.Data))
	if err != nil {
		if errors.Is(err, compression.ErrNoMatch) {
			return envelope.Data, nil
		}
		return nil, fmt.Errorf("sniff compression format: %w", err)
	}
	return uncompressBytes(format, replay)
}

func payloadBytes(v any) ([]byte, error) {
	switch payload := v.(type) {
	case []byte:
		if payload == nil {
			return []byte{}, nil
		}
		return payload, nil
	case io.Reader:
		data, err := io.ReadAll(payload)
		if err != nil {
			return nil, fmt.Errorf("drain payload reader: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("raw codec requires []byte or io.Reader, got %T", v)
	}
}

func compressBytes(format compression.Format, data []byte, opts ...compression.Option) ([]byte, error) {
	var buf bytes.Buffer
	wc, err := format.Compress(&buf, opts...)
	if err != nil {
		return nil, fmt.Errorf("compress with %q: %w", format.Name(), err)
	}
	if _, err := wc.Write(data); err != nil {
		xio.CloseAndSkipError(wc)
		return nil, fmt.Errorf("compress with %q: %w", format.Name(), err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("compress with %q: %w", format.Name(), err)
	}
	return buf.Bytes(), nil
}

func uncompressBytes(format compression.Format, r io.Reader) ([]byte, error) {
	rc, err := format.Uncompress(r)
	if err != nil {
		return nil, fmt.Errorf("uncompress with %q: %w", format.Name(), err)
	}
	defer xio.CloseAndSkipError(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("uncompress with %q: %w", format.Name(), err)
	}
	return data, nil
}
