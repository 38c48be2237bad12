package file_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/storages/file"
)

func newMemStore(t *testing.T, opts ...file.Option) (*file.Storage, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := file.New("/data", append([]file.Option{file.WithFS(fs)}, opts...)...)
	require.NoError(t, err)
	return store, fs
}

func TestNew_EmptyRoot(t *testing.T) {
	_, err := file.New("")
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestStorage_WriteReadData(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t)
	assert.Equal(t, "file@v1", store.Name())
	assert.Equal(t, "/data", store.Root())

	data := []byte(`{"hello":"world"}`)
	dgst := stow.NewDigest(data, "application/json", "")
	hex := dgst.Hex()

	locator, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)
	want := file.Locator{
		Path:   "sha256/" + hex[:2] + "/" + hex,
		Digest: dgst.Digest.String(),
		Size:   int64(len(data)),
	}
	assert.Equal(t, want, locator)

	onDisk, err := afero.ReadFile(fs, filepath.Join("/data", "sha256", hex[:2], hex))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	got, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// The scratch area is empty once the blob is promoted.
	entries, err := afero.ReadDir(fs, "/data/ingest")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorage_IdempotentWrites(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemStore(t)

	data := []byte("payload")
	dgst := stow.NewDigest(data, "application/octet-stream", "")

	first, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)
	second, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStorage_WriteDataStream(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t)

	payload := strings.Repeat("stream me\n", 100)
	src := stow.NewStreamDigester(strings.NewReader(payload), "application/x-ndjson", "")

	locator, err := store.WriteDataStream(ctx, src, nil)
	require.NoError(t, err)

	dgst := stow.NewDigest([]byte(payload), "application/x-ndjson", "")
	loc, ok := locator.(file.Locator)
	require.True(t, ok)
	assert.Equal(t, dgst.Digest.String(), loc.Digest)
	assert.Equal(t, int64(len(payload)), loc.Size)

	rc, err := store.ReadDataStream(ctx, locator)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, string(got))

	entries, err := afero.ReadDir(fs, "/data/ingest")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorage_AbortedStreamLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t)

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("partial bytes"))
		pw.CloseWithError(context.Canceled)
	}()
	src := stow.NewStreamDigester(pr, "application/octet-stream", "")

	_, err := store.WriteDataStream(ctx, src, nil)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := afero.ReadDir(fs, "/data/ingest")
	require.NoError(t, err)
	assert.Empty(t, entries)

	exists, err := afero.DirExists(fs, "/data/sha256")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorage_ReadDataMissing(t *testing.T) {
	store, _ := newMemStore(t)
	_, err := store.ReadData(context.Background(), file.Locator{Path: "sha256/ab/absent"})
	assert.ErrorIs(t, err, errdefs.ErrNoStorageData)
}

func TestStorage_LocatorValidation(t *testing.T) {
	store, _ := newMemStore(t)
	ctx := context.Background()

	_, err := store.ReadData(ctx, "not a locator")
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)

	_, err = store.ReadData(ctx, file.Locator{Path: "../../etc/passwd"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)

	_, err = store.ReadData(ctx, file.Locator{Path: "/etc/passwd"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)

	_, err = store.DecodeLocator(`{"path":"sha256/../../../etc/passwd"}`)
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestStorage_LocatorRoundTrip(t *testing.T) {
	store, _ := newMemStore(t)

	loc := file.Locator{Path: "sha256/ab/abcd", Digest: "sha256:abcd", Size: 4}
	encoded, err := store.EncodeLocator(loc)
	require.NoError(t, err)

	decoded, err := store.DecodeLocator(encoded)
	require.NoError(t, err)
	assert.Equal(t, loc, decoded)
}

func TestStorage_VerifyOnRead(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t, file.WithVerifyOnRead())

	data := []byte("pristine payload")
	dgst := stow.NewDigest(data, "application/octet-stream", "")
	locator, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)

	got, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Tamper with the blob behind the store's back.
	loc := locator.(file.Locator)
	target := filepath.Join("/data", filepath.FromSlash(loc.Path))
	require.NoError(t, afero.WriteFile(fs, target, []byte("tampered payload!"), 0o644))

	_, err = store.ReadData(ctx, locator)
	assert.ErrorIs(t, err, errdefs.ErrContentHashMismatch)

	rc, err := store.ReadDataStream(ctx, locator)
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, errdefs.ErrContentHashMismatch)
	require.NoError(t, rc.Close())

	// A locator without a digest cannot be verified.
	_, err = store.ReadData(ctx, file.Locator{Path: loc.Path})
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestStorage_NoVerifyReadsTamperedBytes(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t)

	data := []byte("pristine payload")
	dgst := stow.NewDigest(data, "application/octet-stream", "")
	locator, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)

	loc := locator.(file.Locator)
	target := filepath.Join("/data", filepath.FromSlash(loc.Path))
	require.NoError(t, afero.WriteFile(fs, target, []byte("tampered payload!"), 0o644))

	got, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, []byte("tampered payload!"), got)
}

func TestStorage_ConcurrentSameDigest(t *testing.T) {
	ctx := context.Background()
	store, fs := newMemStore(t)

	data := []byte("shared payload")
	dgst := stow.NewDigest(data, "application/octet-stream", "")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.WriteData(ctx, data, dgst, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var blobs int
	err := afero.Walk(fs, "/data/sha256", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			blobs++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, blobs)
}

func TestStorage_HostFilesystem(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := file.New(root)
	require.NoError(t, err)

	data := []byte("on the host")
	dgst := stow.NewDigest(data, "application/octet-stream", "")
	locator, err := store.WriteData(ctx, data, dgst, nil)
	require.NoError(t, err)

	loc := locator.(file.Locator)
	onDisk, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(loc.Path)))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// Promotion on the host goes through a flock, which leaves the lock
	// file behind.
	locks, err := os.ReadDir(filepath.Join(root, "locks"))
	require.NoError(t, err)
	assert.Len(t, locks, 1)

	got, err := store.ReadData(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStorage_LockTimeout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := file.New(root, file.WithLockTimeout(50*time.Millisecond))
	require.NoError(t, err)

	data := []byte("contended")
	dgst := stow.NewDigest(data, "application/octet-stream", "")

	// Hold the ingest lock the way another process sharing the root would.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "locks"), 0o755))
	held := flock.New(filepath.Join(root, "locks", dgst.Algorithm()+"-"+dgst.Hex()+".lock"))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	_, err = store.WriteData(ctx, data, dgst, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
