package stow

//go:generate mockgen -destination=./records_mock_test.go -package=stow_test github.com/wuxler/stowage/pkg/stow RecordStore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// Kind discriminates how a content was encoded.
type Kind int16

const (
	// KindValue marks a content encoded from a single value.
	KindValue Kind = 1
	// KindStream marks a content encoded from a stream of values.
	KindStream Kind = 2
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Validate returns an error if k is not a known kind.
func (k Kind) Validate() error {
	switch k {
	case KindValue, KindStream:
		return nil
	default:
		return errdefs.Newf(errdefs.ErrInvalidParameter, "unknown serializer kind %d", int16(k))
	}
}

// Manifest records one saved object: which class it belongs to, which
// unpacker split it, and the contents it was split into. Manifests are
// immutable once committed.
type Manifest struct {
	// ID is the identity assigned when the save was scheduled.
	ID uuid.UUID `json:"id"`
	// ClassID identifies the registered class of the saved object.
	ClassID uuid.UUID `json:"classId"`
	// UnpackerName is the versioned name of the unpacker that split the
	// object and will reassemble it.
	UnpackerName string `json:"unpackerName"`
	// Tags are free-form labels attached at save time.
	Tags map[string]string `json:"tags,omitempty"`
	// CreatedAt is when the save was assembled, in UTC.
	CreatedAt time.Time `json:"createdAt"`
	// Contents are the content rows belonging to the manifest, in unpack
	// order. May be empty on manifests listed without their contents.
	Contents []*Content `json:"contents,omitempty"`
}

// Content looks up a content row by its key.
func (m *Manifest) Content(key string) (*Content, bool) {
	for _, c := range m.Contents {
		if c.ContentKey == key {
			return c, true
		}
	}
	return nil, false
}

// Content records one encoded payload of a manifest: its digest, where the
// bytes live and which codec produced them.
type Content struct {
	// ID is the identity of the content row.
	ID uuid.UUID `json:"id"`
	// ManifestID is the manifest the content belongs to.
	ManifestID uuid.UUID `json:"manifestId"`
	// ContentKey is the unpacker-chosen key, unique within the manifest.
	ContentKey string `json:"contentKey"`
	// ContentType is the media type of the encoded bytes.
	ContentType string `json:"contentType"`
	// ContentEncoding is the optional transfer encoding of the encoded
	// bytes. Empty means identity.
	ContentEncoding string `json:"contentEncoding,omitempty"`
	// ContentHash is the hex digest of the encoded bytes.
	ContentHash string `json:"contentHash"`
	// ContentHashAlgorithm is the digest algorithm, e.g. "sha256".
	ContentHashAlgorithm string `json:"contentHashAlgorithm"`
	// ContentSize is the number of encoded bytes.
	ContentSize int64 `json:"contentSize"`
	// SerializerName is the versioned name of the codec that encoded the
	// payload.
	SerializerName string `json:"serializerName"`
	// SerializerConfig is the codec-specific JSON document returned at
	// encode time, handed back verbatim on decode.
	SerializerConfig json.RawMessage `json:"serializerConfig,omitempty"`
	// SerializerKind tells whether the payload holds a single value or a
	// stream of values.
	SerializerKind Kind `json:"serializerKind"`
	// StorageName is the versioned name of the storage holding the bytes.
	StorageName string `json:"storageName"`
	// StorageConfig is the encoded locator, a JSON document only the owning
	// storage can interpret.
	StorageConfig json.RawMessage `json:"storageConfig"`
	// CreatedAt is when the content was assembled, in UTC.
	CreatedAt time.Time `json:"createdAt"`
}

// Digest reconstructs the digest of the encoded payload from the recorded
// columns.
func (c *Content) Digest() Digest {
	return Digest{
		ContentType:     c.ContentType,
		ContentEncoding: c.ContentEncoding,
		Digest:          digestFromParts(c.ContentHashAlgorithm, c.ContentHash),
		Size:            c.ContentSize,
	}
}

// RecordStore persists manifests and their content rows. Implementations
// must commit each CommitManifests call atomically: either every manifest in
// the batch becomes visible or none does.
type RecordStore interface {
	// CommitManifests writes the manifests and all their contents in a
	// single transaction.
	CommitManifests(ctx context.Context, manifests []*Manifest) error

	// GetManifest fetches a manifest with its contents attached. Returns
	// ErrNotFound if no such manifest exists.
	GetManifest(ctx context.Context, id uuid.UUID) (*Manifest, error)

	// ListManifests lists manifests without their contents, newest first.
	ListManifests(ctx context.Context, opts ...ListOption) ([]*Manifest, error)

	// GetContents fetches the content rows of a manifest in unpack order.
	GetContents(ctx context.Context, manifestID uuid.UUID) ([]*Content, error)
}

// ListOptions narrows a ListManifests call.
type ListOptions struct {
	// Tags filters to manifests carrying all the given tag pairs.
	Tags map[string]string
	// ClassID filters to manifests of the given class when non-zero.
	ClassID uuid.UUID
	// Limit caps the number of returned manifests when positive.
	Limit int
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// MakeListOptions applies opts to a fresh ListOptions.
func MakeListOptions(opts ...ListOption) *ListOptions {
	options := &ListOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithTagFilter filters listed manifests to those carrying all given tags.
func WithTagFilter(tags map[string]string) ListOption {
	return func(o *ListOptions) {
		o.Tags = tags
	}
}

// WithClassFilter filters listed manifests to the given class.
func WithClassFilter(classID uuid.UUID) ListOption {
	return func(o *ListOptions) {
		o.ClassID = classID
	}
}

// WithLimit caps the number of listed manifests.
func WithLimit(n int) ListOption {
	return func(o *ListOptions) {
		o.Limit = n
	}
}
