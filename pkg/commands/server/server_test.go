package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/stowage/pkg/commands/server"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/stow/codecs/jsoncodec"
	"github.com/wuxler/stowage/pkg/stow/storages/memory"
	"github.com/wuxler/stowage/pkg/stow/stowdb"
)

type fixture struct {
	router    *gin.Engine
	documents *stow.Manifest
	rows      *stow.Manifest
	payload   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	records, err := stowdb.Open(filepath.Join(t.TempDir(), "stowage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })
	require.NoError(t, records.CreateAll(ctx))

	storage := memory.New()
	registry := stow.MustNewRegistry(
		stow.WithSerializers(jsoncodec.New()),
		stow.WithStreamSerializers(jsoncodec.NewStream()),
		stow.WithStorages(storage),
		stow.WithDefaultStorage(memory.Name),
		stow.WithStorables(stow.MustClass[map[string]any](
			"9cfb8f86-87f3-4d55-9b1e-6da52b83c799", "document@v1")),
	)

	payload := []byte(`{"hello":"world"}`)
	f := &fixture{
		router:  server.NewRouter(records, registry),
		payload: payload,
	}

	f.documents = seedManifest(t, ctx, records, storage, "value", payload,
		map[string]string{"env": "test"}, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	f.rows = seedManifest(t, ctx, records, storage, "rows", []byte("compressed-bytes"),
		map[string]string{"env": "prod"}, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC))
	return f
}

func seedManifest(t *testing.T, ctx context.Context, records *stowdb.Store,
	storage *memory.Storage, key string, payload []byte,
	tags map[string]string, createdAt time.Time,
) *stow.Manifest {
	t.Helper()

	contentType := "application/json"
	encoding := ""
	if key == "rows" {
		contentType = "application/octet-stream"
		encoding = "gzip"
	}
	dgst := stow.NewDigest(payload, contentType, encoding)
	locator, err := storage.WriteData(ctx, payload, dgst, nil)
	require.NoError(t, err)
	encoded, err := storage.EncodeLocator(locator)
	require.NoError(t, err)

	manifestID := uuid.New()
	manifest := &stow.Manifest{
		ID:           manifestID,
		ClassID:      uuid.MustParse("9cfb8f86-87f3-4d55-9b1e-6da52b83c799"),
		UnpackerName: "document@v1",
		Tags:         tags,
		CreatedAt:    createdAt,
		Contents: []*stow.Content{{
			ID:                   uuid.New(),
			ManifestID:           manifestID,
			ContentKey:           key,
			ContentType:          contentType,
			ContentEncoding:      encoding,
			ContentHash:          dgst.Hex(),
			ContentHashAlgorithm: dgst.Algorithm(),
			ContentSize:          int64(len(payload)),
			SerializerName:       jsoncodec.Name,
			SerializerKind:       stow.KindValue,
			StorageName:          memory.Name,
			StorageConfig:        json.RawMessage(encoded),
			CreatedAt:            createdAt,
		}},
	}
	require.NoError(t, records.CommitManifests(ctx, []*stow.Manifest{manifest}))
	return manifest
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRouter_Version(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/version")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
}

func TestRouter_ListComponents(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/v1/components")
	require.Equal(t, http.StatusOK, w.Code)

	var components struct {
		Serializers       []string `json:"serializers"`
		StreamSerializers []string `json:"stream_serializers"`
		Storages          []string `json:"storages"`
		Unpackers         []string `json:"unpackers"`
		Classes           []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Unpacker string `json:"unpacker"`
		} `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &components))
	assert.Equal(t, []string{jsoncodec.Name}, components.Serializers)
	assert.Equal(t, []string{jsoncodec.StreamName}, components.StreamSerializers)
	assert.Equal(t, []string{memory.Name}, components.Storages)
	assert.Empty(t, components.Unpackers)
	require.Len(t, components.Classes, 1)
	assert.Equal(t, "9cfb8f86-87f3-4d55-9b1e-6da52b83c799", components.Classes[0].ID)
	assert.Equal(t, "map[string]interface {}", components.Classes[0].Type)
	assert.Equal(t, "document@v1", components.Classes[0].Unpacker)
}

func TestRouter_ListManifests(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/v1/manifests")
	require.Equal(t, http.StatusOK, w.Code)

	var manifests []*stow.Manifest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifests))
	require.Len(t, manifests, 2)
	assert.Equal(t, f.rows.ID, manifests[0].ID)
	assert.Equal(t, f.documents.ID, manifests[1].ID)
	assert.Empty(t, manifests[0].Contents)
}

func TestRouter_ListManifestsFiltered(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/manifests?tag=env=test")
	require.Equal(t, http.StatusOK, w.Code)
	var manifests []*stow.Manifest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifests))
	require.Len(t, manifests, 1)
	assert.Equal(t, f.documents.ID, manifests[0].ID)

	w = f.get(t, "/api/v1/manifests?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	manifests = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifests))
	require.Len(t, manifests, 1)
	assert.Equal(t, f.rows.ID, manifests[0].ID)

	w = f.get(t, "/api/v1/manifests?tag=env=absent")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestRouter_ListManifestsBadQuery(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/manifests?tag=oops").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/manifests?limit=ten").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/manifests?class=nope").Code)
}

func TestRouter_GetManifest(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/manifests/"+f.documents.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var manifest stow.Manifest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifest))
	assert.Equal(t, f.documents.ID, manifest.ID)
	require.Len(t, manifest.Contents, 1)
	assert.Equal(t, "value", manifest.Contents[0].ContentKey)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/manifests/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/manifests/not-an-id").Code)
}

func TestRouter_GetContent(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/manifests/"+f.documents.ID.String()+"/contents/value")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.payload, w.Body.Bytes())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound,
		f.get(t, "/api/v1/manifests/"+f.documents.ID.String()+"/contents/absent").Code)
}

func TestRouter_GetContentKeepsEncoding(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/manifests/"+f.rows.ID.String()+"/contents/rows")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "compressed-bytes", w.Body.String())
}
