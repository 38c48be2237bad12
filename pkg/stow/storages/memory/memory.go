// Package memory implements an in-memory content-addressed store. Payloads
// live in a concurrent map keyed by digest, so the driver is safe for use by
// concurrent savers and loaders. Intended for tests and ephemeral setups.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
)

// Name is the default component name of the driver.
const Name = "memory@v1"

// Option configures the store.
type Option func(*Storage)

// WithName overrides the component name, allowing several independent
// in-memory stores in one registry.
func WithName(name string) Option {
	return func(s *Storage) {
		s.name = name
	}
}

// Locator points at a payload held by the store.
type Locator struct {
	Key string `json:"key"`
}

// Storage is an in-memory content-addressed store.
type Storage struct {
	name  string
	blobs *xsync.MapOf[string, []byte]
}

// New returns an empty in-memory store.
func New(opts ...Option) *Storage {
	s := &Storage{
		name:  Name,
		blobs: xsync.NewMapOf[string, []byte](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stow.Component.
func (s *Storage) Name() string {
	return s.name
}

// Len returns the number of payloads held by the store.
func (s *Storage) Len() int {
	return s.blobs.Size()
}

// WriteData implements stow.Storage. Tags are ignored, the driver keeps no
// per-payload metadata.
func (s *Storage) WriteData(ctx context.Context, data []byte, dgst stow.Digest, _ map[string]string) (stow.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dgst.Digest == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "empty digest")
	}
	key := dgst.Digest.String()
	s.blobs.LoadOrStore(key, bytes.Clone(data))
	return Locator{Key: key}, nil
}

// ReadData implements stow.Storage.
func (s *Storage) ReadData(_ context.Context, locator stow.Locator) ([]byte, error) {
	key, err := locatorKey(locator)
	if err != nil {
		return nil, err
	}
	data, ok := s.blobs.Load(key)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNoStorageData, "no payload for %s", key)
	}
	return bytes.Clone(data), nil
}

// WriteDataStream implements stow.Storage. The source is drained to EOF and
// the payload is keyed by the digest computed while draining.
func (s *Storage) WriteDataStream(ctx context.Context, src *stow.StreamDigester, _ map[string]string) (stow.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("drain stream: %w", err)
	}
	sd, err := src.Digest(false)
	if err != nil {
		return nil, err
	}
	key := sd.Digest.Digest.String()
	s.blobs.LoadOrStore(key, data)
	return Locator{Key: key}, nil
}

// ReadDataStream implements stow.Storage.
func (s *Storage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	data, err := s.ReadData(ctx, locator)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// EncodeLocator implements stow.Storage.
func (s *Storage) EncodeLocator(locator stow.Locator) (string, error) {
	if _, err := locatorKey(locator); err != nil {
		return "", err
	}
	return stow.EncodeLocatorJSON(locator)
}

// DecodeLocator implements stow.Storage.
func (s *Storage) DecodeLocator(encoded string) (stow.Locator, error) {
	locator, err := stow.DecodeLocatorJSON[Locator](encoded)
	if err != nil {
		return nil, err
	}
	if locator.Key == "" {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "locator %q has no key", encoded)
	}
	return locator, nil
}

func locatorKey(locator stow.Locator) (string, error) {
	switch loc := locator.(type) {
	case Locator:
		return loc.Key, nil
	case *Locator:
		return loc.Key, nil
	default:
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "locator %T is not a memory locator", locator)
	}
}
