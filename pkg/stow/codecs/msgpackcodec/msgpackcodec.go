// Package msgpackcodec implements MessagePack value and stream codecs. The
// wire format is denser than JSON and keeps binary payloads intact, at the
// cost of not being human readable.
package msgpackcodec

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wuxler/stowage/pkg/stow"
)

const (
	// Name is the component name of the value codec.
	Name = "msgpack@v1"
	// StreamName is the component name of the stream codec.
	StreamName = "msgpack-stream@v1"
	// MediaType is the content type of encoded values.
	MediaType = "application/msgpack"
	// StreamMediaType is the content type of encoded streams, concatenated
	// MessagePack objects.
	StreamMediaType = "application/msgpack-seq"
)

// Option configures the value codec.
type Option func(*Serializer)

// WithTypes adds runtime types the codec claims during type inference. The
// codec claims no types by default; it is picked via hints, content types or
// explicit claims.
func WithTypes(types ...reflect.Type) Option {
	return func(s *Serializer) {
		s.types = append(s.types, types...)
	}
}

// Serializer is the MessagePack value codec.
type Serializer struct {
	types []reflect.Type
}

// New returns the MessagePack value codec.
func New(opts ...Option) *Serializer {
	s := &Serializer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stow.Component.
func (s *Serializer) Name() string {
	return Name
}

// Types implements stow.Serializer.
func (s *Serializer) Types() []reflect.Type {
	return s.types
}

// ContentTypes implements stow.Serializer.
func (s *Serializer) ContentTypes() []string {
	return []string{MediaType, "application/x-msgpack"}
}

// Serialize implements stow.Serializer.
func (s *Serializer) Serialize(v any) (*stow.Envelope, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return &stow.Envelope{Data: data, ContentType: MediaType}, nil
}

// Deserialize implements stow.Serializer.
func (s *Serializer) Deserialize(envelope *stow.Envelope) (any, error) {
	var v any
	if err := msgpack.Unmarshal(envelope.Data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", MediaType, err)
	}
	return v, nil
}
