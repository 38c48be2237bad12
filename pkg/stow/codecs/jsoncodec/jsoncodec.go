// Package jsoncodec implements the JSON value codec and the JSON-lines
// stream codec.
package jsoncodec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/wuxler/stowage/pkg/stow"
)

const (
	// Name is the component name of the value codec.
	Name = "json@v1"
	// StreamName is the component name of the stream codec.
	StreamName = "json-lines@v1"
	// MediaType is the content type of encoded values.
	MediaType = "application/json"
	// StreamMediaType is the content type of encoded streams, one JSON
	// document per line.
	StreamMediaType = "application/x-ndjson"
)

// defaultTypes are the runtime types the codecs claim for inference. Callers
// with their own JSON-shaped structs extend the claim with WithTypes or bind
// a registry-level type predicate.
func defaultTypes() []reflect.Type {
	return []reflect.Type{
		reflect.TypeFor[map[string]any](),
		reflect.TypeFor[[]any](),
		reflect.TypeFor[string](),
		reflect.TypeFor[float64](),
		reflect.TypeFor[bool](),
	}
}

// Option configures the value codec.
type Option func(*Serializer)

// WithTypes adds runtime types the codec claims during type inference.
func WithTypes(types ...reflect.Type) Option {
	return func(s *Serializer) {
		s.types = append(s.types, types...)
	}
}

// Serializer is the JSON value codec.
type Serializer struct {
	types []reflect.Type
}

// New returns the JSON value codec.
func New(opts ...Option) *Serializer {
	s := &Serializer{types: defaultTypes()}
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
	return []string{MediaType}
}

// Serialize implements stow.Serializer.
func (s *Serializer) Serialize(v any) (*stow.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return &stow.Envelope{Data: data, ContentType: MediaType}, nil
}

// Deserialize implements stow.Serializer.
func (s *Serializer) Deserialize(envelope *stow.Envelope) (any, error) {
	var v any
	if err := json.Unmarshal(envelope.Data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", MediaType, err)
	}
	return v, nil
}
