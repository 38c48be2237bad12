// Package xcache defines the cache contract shared by storage decorators and
// a memory implementation with TTL-based expiry.
package xcache

import "context"

// Cache stores values by string key. Implementations are safe for concurrent
// use and may evict entries at any time, callers treat every Get as a
// may-miss.
type Cache[T any] interface {
	// Get returns the cached value of the key.
	Get(ctx context.Context, key string) (T, bool)
	// Set stores the value under the key.
	Set(ctx context.Context, key string, value T)
	// Delete removes the key.
	Delete(ctx context.Context, key string)
}
