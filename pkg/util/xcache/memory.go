package xcache

import (
	"context"
	"time"

	"github.com/maypok86/otter"
)

const (
	defaultCapacity = 4096
	defaultTTL      = time.Hour
)

// NewMemory returns a memory cache holding up to capacity entries for at
// most an hour each. Entries are evicted under memory pressure, cost is the
// entry count, not the byte size.
func NewMemory[T any]() Cache[T] {
	cache, err := otter.MustBuilder[string, T](defaultCapacity).
		WithTTL(defaultTTL).
		Build()
	if err != nil {
		panic(err)
	}
	return &memoryCache[T]{cache: cache}
}

type memoryCache[T any] struct {
	cache otter.Cache[string, T]
}

func (s *memoryCache[T]) Get(_ context.Context, key string) (T, bool) {
	return s.cache.Get(key)
}

func (s *memoryCache[T]) Set(_ context.Context, key string, value T) {
	s.cache.Set(key, value)
}

func (s *memoryCache[T]) Delete(_ context.Context, key string) {
	s.cache.Delete(key)
}
