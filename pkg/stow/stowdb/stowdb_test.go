package stowdb_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/codecs/jsoncodec"
	"github.com/wuxler/stowage/pkg/stow/storages/memory"
	"github.com/wuxler/stowage/pkg/stow/stowdb"
)

func openTestStore(t *testing.T) *stowdb.Store {
	t.Helper()
	store, err := stowdb.Open(filepath.Join(t.TempDir(), "stowage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.CreateAll(context.Background()))
	return store
}

func testManifest(createdAt time.Time, keys ...string) *stow.Manifest {
	manifest := &stow.Manifest{
		ID:           uuid.New(),
		ClassID:      uuid.New(),
		UnpackerName: "document@v1",
		Tags:         map[string]string{"env": "test"},
		CreatedAt:    createdAt,
	}
	for _, key := range keys {
		manifest.Contents = append(manifest.Contents, testContent(manifest.ID, key, createdAt))
	}
	return manifest
}

func testContent(manifestID uuid.UUID, key string, createdAt time.Time) *stow.Content {
	data := []byte(`{"key":"` + key + `"}`)
	dgst := stow.NewDigest(data, "application/json", "")
	return &stow.Content{
		ID:                   uuid.New(),
		ManifestID:           manifestID,
		ContentKey:           key,
		ContentType:          "application/json",
		ContentHash:          dgst.Hex(),
		ContentHashAlgorithm: dgst.Algorithm(),
		ContentSize:          dgst.Size,
		SerializerName:       "json@v1",
		SerializerKind:       stow.KindValue,
		StorageName:          "memory@v1",
		StorageConfig:        json.RawMessage(`{"key":"sha256:` + dgst.Hex() + `"}`),
		CreatedAt:            createdAt,
	}
}

func TestStore_Open_EmptyPath(t *testing.T) {
	_, err := stowdb.Open("")
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestStore_CreateAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stowage.db")
	store, err := stowdb.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateAll(ctx))
	require.NoError(t, store.CreateAll(ctx))
	require.NoError(t, store.Close())

	// Reopening hits the fast path and still sees a working schema.
	store, err = stowdb.Open(path)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.CreateAll(ctx))

	manifests, err := store.ListManifests(ctx)
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestStore_New_DoesNotOwnHandle(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "stowage.db"))
	require.NoError(t, err)
	defer db.Close()

	store := stowdb.New(db)
	require.NoError(t, store.CreateAll(ctx))
	require.NoError(t, store.Close())

	// The handle stays usable after Close because the caller owns it.
	require.NoError(t, db.PingContext(ctx))
}

func TestStore_CommitAndGetManifest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	manifest := testManifest(createdAt, "meta", "items")
	manifest.Contents[1].ContentEncoding = "gzip"
	manifest.Contents[1].SerializerConfig = json.RawMessage(`{"dialect":"csv"}`)
	manifest.Contents[1].SerializerKind = stow.KindStream

	require.NoError(t, store.CommitManifests(ctx, []*stow.Manifest{manifest}))

	fetched, err := store.GetManifest(ctx, manifest.ID)
	require.NoError(t, err)
	assert.Equal(t, manifest, fetched)
}

func TestStore_GetManifest_NotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetManifest(ctx, uuid.New())
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestStore_CommitManifests_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CommitManifests(ctx, nil))
}

func TestStore_CommitManifests_Atomic(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := testManifest(now, "meta")
	second := testManifest(now, "meta")
	// Duplicate content key within one manifest violates the unique index.
	second.Contents = append(second.Contents, testContent(second.ID, "meta", now))

	err := store.CommitManifests(ctx, []*stow.Manifest{first, second})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrIntegrity)

	// The healthy sibling must not be visible either.
	_, err = store.GetManifest(ctx, first.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestStore_CommitManifests_DuplicateManifest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manifest := testManifest(now, "meta")
	require.NoError(t, store.CommitManifests(ctx, []*stow.Manifest{manifest}))

	err := store.CommitManifests(ctx, []*stow.Manifest{manifest})
	assert.ErrorIs(t, err, errdefs.ErrIntegrity)
}

func TestStore_CommitManifests_InvalidJSONRejected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manifest := testManifest(now, "meta")
	manifest.Contents[0].StorageConfig = json.RawMessage(`{oops`)

	err := store.CommitManifests(ctx, []*stow.Manifest{manifest})
	assert.ErrorIs(t, err, errdefs.ErrIntegrity)

	_, err = store.GetManifest(ctx, manifest.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestStore_CommitManifests_ForeignManifestID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manifest := testManifest(now, "meta")
	manifest.Contents[0].ManifestID = uuid.New()

	err := store.CommitManifests(ctx, []*stow.Manifest{manifest})
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestStore_ListManifests(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := testManifest(base)
	first.Tags = map[string]string{"env": "prod"}
	second := testManifest(base.Add(time.Second))
	second.Tags = map[string]string{"env": "test", "team": "data"}
	third := testManifest(base.Add(2 * time.Second))
	third.Tags = nil

	require.NoError(t, store.CommitManifests(ctx, []*stow.Manifest{first, second, third}))

	all, err := store.ListManifests(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first, contents detached.
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)
	assert.Empty(t, all[0].Contents)
	assert.Nil(t, all[0].Tags)

	byTag, err := store.ListManifests(ctx, stow.WithTagFilter(map[string]string{"env": "test"}))
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, second.ID, byTag[0].ID)

	byClass, err := store.ListManifests(ctx, stow.WithClassFilter(first.ClassID))
	require.NoError(t, err)
	require.Len(t, byClass, 1)
	assert.Equal(t, first.ID, byClass[0].ID)

	limited, err := store.ListManifests(ctx, stow.WithLimit(2))
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, third.ID, limited[0].ID)
	assert.Equal(t, second.ID, limited[1].ID)

	tagAndLimit, err := store.ListManifests(ctx,
		stow.WithTagFilter(map[string]string{"env": "prod"}), stow.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, tagAndLimit, 1)
	assert.Equal(t, first.ID, tagAndLimit[0].ID)
}

func TestStore_GetContents_KeepsUnpackOrder(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manifest := testManifest(now, "zeta", "alpha", "mid")
	require.NoError(t, store.CommitManifests(ctx, []*stow.Manifest{manifest}))

	contents, err := store.GetContents(ctx, manifest.ID)
	require.NoError(t, err)
	require.Len(t, contents, 3)
	assert.Equal(t, "zeta", contents[0].ContentKey)
	assert.Equal(t, "alpha", contents[1].ContentKey)
	assert.Equal(t, "mid", contents[2].ContentKey)

	unknown, err := store.GetContents(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestStore_DropAll(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manifest := testManifest(now, "meta")
	require.NoError(t, store.CommitManifests(ctx, []*stow.Manifest{manifest}))

	require.NoError(t, store.DropAll(ctx))
	_, err := store.ListManifests(ctx)
	require.Error(t, err)

	require.NoError(t, store.CreateAll(ctx))
	manifests, err := store.ListManifests(ctx)
	require.NoError(t, err)
	assert.Empty(t, manifests)
	_, err = store.GetManifest(ctx, manifest.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

// blobUnpacker stores the whole object under one "value" key.
type blobUnpacker struct{}

func (blobUnpacker) Name() string { return "blob@v1" }

func (blobUnpacker) Unpack(_ context.Context, obj any, _ *stow.Registry) (*stow.ContentMap, error) {
	contents := stow.NewContentMap()
	contents.Set("value", stow.NewValueContent(obj))
	return contents, nil
}

func (blobUnpacker) Repack(_ context.Context, _ stow.Class, contents *stow.LoadedMap, _ *stow.Registry) (any, error) {
	return contents.Value("value")
}

func TestStore_PipelineRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	registry, err := stow.NewRegistry(
		stow.WithSerializers(jsoncodec.New()),
		stow.WithStreamSerializers(jsoncodec.NewStream()),
		stow.WithStorages(memory.New()),
		stow.WithDefaultStorage(memory.Name),
		stow.WithUnpackers(blobUnpacker{}),
		stow.WithStorables(stow.MustClass[map[string]any]("b10b0001", "blob@v1")),
		stow.WithTypePredicate(func(reflect.Type) bool { return true }, jsoncodec.Name),
	)
	require.NoError(t, err)

	obj := map[string]any{"hello": "world", "n": 42.0}
	manifest, err := stow.SaveOne(ctx, registry, store, obj)
	require.NoError(t, err)

	loaded, err := stow.LoadByID(ctx, registry, store, manifest.ID)
	require.NoError(t, err)
	assert.Equal(t, obj, loaded)
}
