// Package stow implements content-addressed object persistence. Objects are
// split by an Unpacker into named contents, each content is encoded by a
// Serializer and written to a Storage keyed by the digest of its encoded
// bytes, and the resulting layout is recorded as a Manifest in a RecordStore.
// Loading reverses the pipeline and reassembles the object.
package stow

// Component is implemented by every pluggable piece of the pipeline:
// serializers, storages and unpackers. The name identifies the component in
// persisted manifests and must satisfy ValidateName.
type Component interface {
	// Name returns the versioned component name, e.g. "json@v1".
	Name() string
}
