package jsoncodec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xcontext"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
	"github.com/wuxler/stowage/pkg/util/xio"
)

// StreamOption configures the stream codec.
type StreamOption func(*StreamSerializer)

// WithStreamTypes adds runtime element types the codec claims during type
// inference.
func WithStreamTypes(types ...reflect.Type) StreamOption {
	return func(s *StreamSerializer) {
		s.types = append(s.types, types...)
	}
}

// StreamSerializer is the JSON-lines stream codec: one JSON document per
// value, newline separated.
type StreamSerializer struct {
	types []reflect.Type
}

// NewStream returns the JSON-lines stream codec.
func NewStream(opts ...StreamOption) *StreamSerializer {
	s := &StreamSerializer{types: defaultTypes()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stow.Component.
func (s *StreamSerializer) Name() string {
	return StreamName
}

// Types implements stow.StreamSerializer.
func (s *StreamSerializer) Types() []reflect.Type {
	return s.types
}

// ContentTypes implements stow.StreamSerializer.
func (s *StreamSerializer) ContentTypes() []string {
	return []string{StreamMediaType}
}

// SerializeStream implements stow.StreamSerializer. Values are encoded
// lazily: the returned envelope streams documents as the consumer reads, and
// the input sequence is not touched before that.
func (s *StreamSerializer) SerializeStream(ctx context.Context, values iter.Seq[any]) (*stow.StreamEnvelope, error) {
	if values == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "nil value stream")
	}
	pr, pw := io.Pipe()
	go func() {
		encoder := json.NewEncoder(pw)
		for v, err := range values {
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := ctx.Err(); err != nil {
				pw.CloseWithError(context.Cause(ctx))
				return
			}
			if err := encoder.Encode(v); err != nil {
				pw.CloseWithError(fmt.Errorf("encode %T: %w", v, err))
				return
			}
		}
		pw.Close()
	}()
	return &stow.StreamEnvelope{
		DataStream:  xio.NewCanceledReadCloser(ctx, pr),
		ContentType: StreamMediaType,
	}, nil
}

// DeserializeStream implements stow.StreamSerializer. The returned sequence
// owns the envelope stream and closes it when iteration stops.
func (s *StreamSerializer) DeserializeStream(ctx context.Context, envelope *stow.StreamEnvelope) (iter.Seq[any], error) {
	if envelope == nil || envelope.DataStream == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "nil envelope stream")
	}
	stream := xio.NewCanceledReadCloser(ctx, envelope.DataStream)
	return func(yield func(any, error) bool) {
		defer xio.CloseAndSkipError(stream)
		decoder := json.NewDecoder(stream)
		for {
			// The decoder may hold buffered documents after the stream is
			// torn down, stop yielding them once the context is done.
			if err := xcontext.NonBlockingCheck(ctx, "decoding stream aborted"); err != nil {
				yield(nil, err)
				return
			}
			var v any
			if err := decoder.Decode(&v); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("decode %s payload: %w", StreamMediaType, err))
				}
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}, nil
}
