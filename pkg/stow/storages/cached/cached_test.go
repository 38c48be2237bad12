package cached_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/storages/cached"
	"github.com/wuxler/stowage/pkg/stow/storages/memory"
	"github.com/wuxler/stowage/pkg/util/xcache"
)

// countingStorage counts reads hitting the inner driver.
type countingStorage struct {
	*memory.Storage
	reads       atomic.Int64
	streamReads atomic.Int64
}

func newCountingStorage() *countingStorage {
	return &countingStorage{Storage: memory.New()}
}

func (c *countingStorage) ReadData(ctx context.Context, locator stow.Locator) ([]byte, error) {
	c.reads.Add(1)
	return c.Storage.ReadData(ctx, locator)
}

func (c *countingStorage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	c.streamReads.Add(1)
	return c.Storage.ReadDataStream(ctx, locator)
}

func TestStorage_NamePassthrough(t *testing.T) {
	store := cached.New(memory.New())
	assert.Equal(t, "memory@v1", store.Name())
}

func TestStorage_WritePrimesCache(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStorage()
	store := cached.New(inner)

	data := []byte(`{"hello":"world"}`)
	locator, err := store.WriteData(ctx, data, stow.NewDigest(data, "application/json", ""), nil)
	require.NoError(t, err)

	got, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(0), inner.reads.Load())
}

func TestStorage_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStorage()
	store := cached.New(inner)

	// Payload written behind the decorator's back.
	data := []byte("payload")
	locator, err := inner.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	for range 3 {
		got, err := store.ReadData(ctx, locator)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	assert.Equal(t, int64(1), inner.reads.Load())
}

func TestStorage_StreamServedFromCache(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStorage()
	store := cached.New(inner)

	data := []byte("stream me")
	locator, err := store.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	rc, err := store.ReadDataStream(ctx, locator)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)
	assert.Equal(t, int64(0), inner.streamReads.Load())
}

func TestStorage_StreamMissDelegates(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStorage()
	store := cached.New(inner)

	data := []byte("uncached stream")
	locator, err := inner.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	rc, err := store.ReadDataStream(ctx, locator)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)
	assert.Equal(t, int64(1), inner.streamReads.Load())
}

// gatedStorage blocks reads until released, holding several readers in
// flight at once.
type gatedStorage struct {
	*memory.Storage
	reads   atomic.Int64
	release chan struct{}
}

func (g *gatedStorage) ReadData(ctx context.Context, locator stow.Locator) ([]byte, error) {
	g.reads.Add(1)
	<-g.release
	return g.Storage.ReadData(ctx, locator)
}

func TestStorage_ConcurrentMissesCoalesce(t *testing.T) {
	ctx := context.Background()
	inner := &gatedStorage{Storage: memory.New(), release: make(chan struct{})}
	store := cached.New(inner)

	data := []byte("stampede")
	locator, err := inner.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.ReadData(ctx, locator)
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	// Let the readers pile up on the flight group before the single inner
	// read is allowed to finish.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int64(1), inner.reads.Load())
	for _, got := range results {
		assert.Equal(t, data, got)
	}
}

func TestStorage_SharedCache(t *testing.T) {
	ctx := context.Background()
	shared := xcache.NewMemory[[]byte]()
	primary := newCountingStorage()
	replica := newCountingStorage()
	front := cached.New(primary, cached.WithCache(shared))
	back := cached.New(replica, cached.WithCache(shared))

	data := []byte("written once")
	locator, err := front.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	// The replica never stored the payload, the shared cache serves it anyway.
	got, err := back.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(0), replica.reads.Load())
}

func TestStorage_LargePayloadNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStorage()
	store := cached.New(inner, cached.WithMaxPayloadSize(4))

	data := []byte("much too large")
	locator, err := store.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	for range 2 {
		got, err := store.ReadData(ctx, locator)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	assert.Equal(t, int64(2), inner.reads.Load())
}

func TestStorage_MutationDoesNotPoisonCache(t *testing.T) {
	ctx := context.Background()
	store := cached.New(memory.New())

	data := []byte("immutable")
	locator, err := store.WriteData(ctx, data, stow.NewDigest(data, "text/plain", ""), nil)
	require.NoError(t, err)

	first, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	first[0] = 'X'

	second, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, second)
}

func TestStorage_LocatorPassthrough(t *testing.T) {
	store := cached.New(memory.New())

	encoded, err := store.EncodeLocator(memory.Locator{Key: "sha256:abc"})
	require.NoError(t, err)
	decoded, err := store.DecodeLocator(encoded)
	require.NoError(t, err)
	assert.Equal(t, memory.Locator{Key: "sha256:abc"}, decoded)
}
