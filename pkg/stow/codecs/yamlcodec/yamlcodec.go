// Package yamlcodec implements a YAML value codec. It is meant for
// human-edited configuration payloads; prefer jsoncodec or msgpackcodec for
// machine-generated contents.
package yamlcodec

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/wuxler/stowage/pkg/stow"
)

const (
	// Name is the component name of the codec.
	Name = "yaml@v1"
	// MediaType is the content type of encoded values.
	MediaType = "application/yaml"
)

// Option configures the codec.
type Option func(*Serializer)

// WithTypes adds runtime types the codec claims during type inference. The
// codec claims no types by default.
func WithTypes(types ...reflect.Type) Option {
	return func(s *Serializer) {
		s.types = append(s.types, types...)
	}
}

// Serializer is the YAML value codec.
type Serializer struct {
	types []reflect.Type
}

// New returns the YAML value codec.
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
	return []string{MediaType, "text/yaml"}
}

// Serialize implements stow.Serializer.
func (s *Serializer) Serialize(v any) (*stow.Envelope, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return &stow.Envelope{Data: data, ContentType: MediaType}, nil
}

// Deserialize implements stow.Serializer.
func (s *Serializer) Deserialize(envelope *stow.Envelope) (any, error) {
	var v any
	if err := yaml.Unmarshal(envelope.Data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", MediaType, err)
	}
	return v, nil
}
