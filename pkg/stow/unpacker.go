package stow

import (
	"context"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
)

// Unpacker splits objects of its classes into named contents and reassembles
// them. Implementations decide the content keys, which contents are plain
// values and which are streams, and how the pieces relate.
type Unpacker interface {
	Component

	// Unpack splits obj into named contents. The registry is available for
	// unpackers that encode nested payloads themselves, e.g. inline body
	// documents.
	Unpack(ctx context.Context, obj any, registry *Registry) (*ContentMap, error)

	// Repack reassembles an object of the given class from its loaded
	// contents.
	Repack(ctx context.Context, class Class, contents *LoadedMap, registry *Registry) (any, error)
}

// UnpackedContent is one named piece of an unpacked object: either a single
// value or a stream of values, plus optional codec and storage hints.
type UnpackedContent struct {
	kind       Kind
	value      any
	stream     iter.Seq[any]
	serializer string
	storage    string
}

// ContentOption mutates an unpacked content at construction.
type ContentOption func(*UnpackedContent)

// WithSerializerHint pins the content to a named serializer instead of
// type-based inference.
func WithSerializerHint(name string) ContentOption {
	return func(c *UnpackedContent) {
		c.serializer = name
	}
}

// WithStorageHint pins the content to a named storage instead of the
// registry default.
func WithStorageHint(name string) ContentOption {
	return func(c *UnpackedContent) {
		c.storage = name
	}
}

// NewValueContent wraps a single value as an unpacked content.
func NewValueContent(v any, opts ...ContentOption) UnpackedContent {
	content := UnpackedContent{kind: KindValue, value: v}
	for _, opt := range opts {
		opt(&content)
	}
	return content
}

// NewStreamContent wraps a value stream as an unpacked content. The stream
// is consumed once, during the save that carries it.
func NewStreamContent(values iter.Seq[any], opts ...ContentOption) UnpackedContent {
	content := UnpackedContent{kind: KindStream, stream: values}
	for _, opt := range opts {
		opt(&content)
	}
	return content
}

// Kind reports whether the content holds a value or a stream. The zero
// UnpackedContent has an invalid kind.
func (c UnpackedContent) Kind() Kind {
	return c.kind
}

// Value returns the wrapped value of a KindValue content.
func (c UnpackedContent) Value() any {
	return c.value
}

// Stream returns the wrapped sequence of a KindStream content.
func (c UnpackedContent) Stream() iter.Seq[any] {
	return c.stream
}

// SerializerHint returns the pinned serializer name, empty when the content
// relies on type inference.
func (c UnpackedContent) SerializerHint() string {
	return c.serializer
}

// StorageHint returns the pinned storage name, empty when the content goes
// to the registry default.
func (c UnpackedContent) StorageHint() string {
	return c.storage
}

// ContentMap is an insertion-ordered map of content key to unpacked content.
// The order keys were set in is the order contents are recorded in.
type ContentMap struct {
	keys  []string
	items map[string]UnpackedContent
}

// NewContentMap returns an empty content map.
func NewContentMap() *ContentMap {
	return &ContentMap{items: make(map[string]UnpackedContent)}
}

// Set adds or replaces the content under key. Replacing keeps the original
// position.
func (m *ContentMap) Set(key string, content UnpackedContent) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = content
}

// Get returns the content under key.
func (m *ContentMap) Get(key string) (UnpackedContent, bool) {
	content, ok := m.items[key]
	return content, ok
}

// Keys returns the keys in insertion order.
func (m *ContentMap) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len returns the number of contents.
func (m *ContentMap) Len() int {
	return len(m.keys)
}

// LoadedContent is one decoded piece of a manifest handed to Repack: the
// decoded value or stream plus the components and record that produced it.
type LoadedContent struct {
	// Kind tells whether Value or Stream is populated.
	Kind Kind
	// Value is the decoded value of a KindValue content.
	Value any
	// Stream is the decoded sequence of a KindStream content. It is lazy
	// and single-use.
	Stream iter.Seq[any]
	// Serializer is the codec that decoded the content: a Serializer for
	// KindValue, a StreamSerializer for KindStream.
	Serializer Component
	// Storage is the storage the encoded bytes were read from.
	Storage Storage
	// Record is the content row the piece was loaded from.
	Record *Content
}

// LoadedMap is an ordered map of content key to loaded content, in record
// order.
type LoadedMap struct {
	keys  []string
	items map[string]LoadedContent
}

// NewLoadedMap returns an empty loaded map.
func NewLoadedMap() *LoadedMap {
	return &LoadedMap{items: make(map[string]LoadedContent)}
}

// Set adds or replaces the content under key.
func (m *LoadedMap) Set(key string, content LoadedContent) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = content
}

// Get returns the content under key.
func (m *LoadedMap) Get(key string) (LoadedContent, bool) {
	content, ok := m.items[key]
	return content, ok
}

// Value returns the decoded value under key, failing when the key is missing
// or holds a stream.
func (m *LoadedMap) Value(key string) (any, error) {
	content, ok := m.items[key]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotFound, "no content under key %q", key)
	}
	if content.Kind != KindValue {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter,
			"content %q holds a %s, not a value", key, content.Kind)
	}
	return content.Value, nil
}

// Stream returns the decoded sequence under key, failing when the key is
// missing or holds a single value.
func (m *LoadedMap) Stream(key string) (iter.Seq[any], error) {
	content, ok := m.items[key]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotFound, "no content under key %q", key)
	}
	if content.Kind != KindStream {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter,
			"content %q holds a %s, not a stream", key, content.Kind)
	}
	return content.Stream, nil
}

// Keys returns the keys in record order.
func (m *LoadedMap) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len returns the number of contents.
func (m *LoadedMap) Len() int {
	return len(m.keys)
}
