package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wuxler/stowage/pkg/appinfo"
	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xio"
)

// NewRouter assembles the read-only inspection API on top of the record
// store and the storage registry. Mutating routes are deliberately absent,
// writes go through the saver pipeline.
func NewRouter(records stow.RecordStore, registry *stow.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, appinfo.GetVersion())
	})

	api := router.Group("/api/v1")
	api.GET("/components", listComponents(registry))
	api.GET("/manifests", listManifests(records))
	api.GET("/manifests/:id", getManifest(records))
	api.GET("/manifests/:id/contents/:key", getContent(records, registry))
	return router
}

// listComponents reports what the serving process has registered. A manifest
// is only loadable when the serializer, storage and unpacker it names are
// present here, so the route doubles as a deployment check.
func listComponents(registry *stow.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		classes := registry.Storables()
		classDocs := make([]gin.H, 0, len(classes))
		for _, class := range classes {
			classDocs = append(classDocs, gin.H{
				"id":       class.ID.String(),
				"type":     class.Type.String(),
				"unpacker": class.Unpacker,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"serializers":        registry.SerializerNames(),
			"stream_serializers": registry.StreamSerializerNames(),
			"storages":           registry.StorageNames(),
			"unpackers":          registry.UnpackerNames(),
			"classes":            classDocs,
		})
	}
}

func listManifests(records stow.RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := []stow.ListOption{}

		tags, err := parseTagParams(c.QueryArray("tag"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if len(tags) > 0 {
			opts = append(opts, stow.WithTagFilter(tags))
		}
		if raw := c.Query("class"); raw != "" {
			classID, err := uuid.Parse(raw)
			if err != nil {
				abortWithError(c, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid class id %q", raw))
				return
			}
			opts = append(opts, stow.WithClassFilter(classID))
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				abortWithError(c, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid limit %q", raw))
				return
			}
			opts = append(opts, stow.WithLimit(limit))
		}

		manifests, err := records.ListManifests(c.Request.Context(), opts...)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if manifests == nil {
			manifests = []*stow.Manifest{}
		}
		c.JSON(http.StatusOK, manifests)
	}
}

func getManifest(records stow.RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseManifestID(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		manifest, err := records.GetManifest(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, manifest)
	}
}

func getContent(records stow.RecordStore, registry *stow.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseManifestID(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		manifest, err := records.GetManifest(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		key := c.Param("key")
		content, ok := manifest.Content(key)
		if !ok {
			abortWithError(c, errdefs.Newf(errdefs.ErrNotFound, "content %q in manifest %s", key, id))
			return
		}

		storage, err := registry.Storage(content.StorageName)
		if err != nil {
			abortWithError(c, err)
			return
		}
		locator, err := storage.DecodeLocator(string(content.StorageConfig))
		if err != nil {
			abortWithError(c, err)
			return
		}
		rc, err := storage.ReadDataStream(c.Request.Context(), locator)
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer xio.CloseAndSkipError(rc)

		// Payloads are served exactly as stored, compressed ones keep their
		// recorded transfer encoding.
		extraHeaders := map[string]string{}
		if content.ContentEncoding != "" {
			extraHeaders["Content-Encoding"] = content.ContentEncoding
		}
		c.DataFromReader(http.StatusOK, content.ContentSize, content.ContentType, rc, extraHeaders)
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrNotFound), errors.Is(err, errdefs.ErrNoStorageData):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrInvalidParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseManifestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid manifest id %q", raw)
	}
	return id, nil
}

func parseTagParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "tag filter %q is not formatted as KEY=VALUE", pair)
		}
		tags[key] = value
	}
	return tags, nil
}
