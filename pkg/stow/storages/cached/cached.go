// Package cached decorates a storage driver with an in-memory read cache.
// The decorator keeps the inner driver's component name, so it can stand in
// for the driver everywhere a registry resolves storages by name. Payloads
// are cached under their encoded locator; only payloads up to the configured
// size limit are kept.
package cached

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xcache"
)

// DefaultMaxPayloadSize is the largest payload the cache keeps, 8 MiB.
const DefaultMaxPayloadSize = int64(8 << 20)

// Option configures the decorator.
type Option func(*Storage)

// WithCache replaces the backing cache, for example to share one cache
// between several decorated drivers.
func WithCache(cache xcache.Cache[[]byte]) Option {
	return func(s *Storage) {
		s.cache = cache
	}
}

// WithMaxPayloadSize caps the size of payloads kept in the cache. Larger
// payloads pass through uncached.
func WithMaxPayloadSize(n int64) Option {
	return func(s *Storage) {
		s.maxPayloadSize = n
	}
}

// Storage is a caching decorator around another storage driver.
type Storage struct {
	inner          stow.Storage
	cache          xcache.Cache[[]byte]
	maxPayloadSize int64
	loadGroup      singleflight.Group
}

// New wraps inner with a read cache.
func New(inner stow.Storage, opts ...Option) *Storage {
	s := &Storage{
		inner:          inner,
		cache:          xcache.NewMemory[[]byte](),
		maxPayloadSize: DefaultMaxPayloadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stow.Component. The decorator answers to the inner
// driver's name.
func (s *Storage) Name() string {
	return s.inner.Name()
}

// WriteData implements stow.Storage. Successful writes prime the cache, the
// payload is already in hand.
func (s *Storage) WriteData(ctx context.Context, data []byte, dgst stow.Digest, tags map[string]string) (stow.Locator, error) {
	locator, err := s.inner.WriteData(ctx, data, dgst, tags)
	if err != nil {
		return nil, err
	}
	if key, err := s.inner.EncodeLocator(locator); err == nil && s.cacheable(int64(len(data))) {
		s.cache.Set(ctx, key, bytes.Clone(data))
	}
	return locator, nil
}

// ReadData implements stow.Storage. Concurrent misses on one key collapse
// into a single inner read; the driver call runs under the first caller's
// context.
func (s *Storage) ReadData(ctx context.Context, locator stow.Locator) ([]byte, error) {
	key, err := s.inner.EncodeLocator(locator)
	if err != nil {
		// Leave the canonical complaint about the locator to the driver.
		return s.inner.ReadData(ctx, locator)
	}
	if data, ok := s.cache.Get(ctx, key); ok {
		return bytes.Clone(data), nil
	}
	loaded, err, _ := s.loadGroup.Do(key, func() (any, error) {
		data, err := s.inner.ReadData(ctx, locator)
		if err != nil {
			return nil, err
		}
		if s.cacheable(int64(len(data))) {
			s.cache.Set(ctx, key, bytes.Clone(data))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(loaded.([]byte)), nil
}

// WriteDataStream implements stow.Storage. Streams pass through uncached.
func (s *Storage) WriteDataStream(ctx context.Context, src *stow.StreamDigester, tags map[string]string) (stow.Locator, error) {
	return s.inner.WriteDataStream(ctx, src, tags)
}

// ReadDataStream implements stow.Storage. A cached payload is served from
// memory; anything else streams from the inner driver uncached.
func (s *Storage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	if key, err := s.inner.EncodeLocator(locator); err == nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
		}
	}
	return s.inner.ReadDataStream(ctx, locator)
}

// EncodeLocator implements stow.Storage.
func (s *Storage) EncodeLocator(locator stow.Locator) (string, error) {
	return s.inner.EncodeLocator(locator)
}

// DecodeLocator implements stow.Storage.
func (s *Storage) DecodeLocator(encoded string) (stow.Locator, error) {
	return s.inner.DecodeLocator(encoded)
}

func (s *Storage) cacheable(size int64) bool {
	return s.maxPayloadSize <= 0 || size <= s.maxPayloadSize
}
