package stow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/xlog"
)

// Loader schedules manifest loads. Each LoadSoon call decodes one manifest
// concurrently with its siblings; Wait joins them all. A failed load never
// aborts its siblings.
type Loader struct {
	registry *Registry
	records  RecordStore

	wg sync.WaitGroup

	mu     sync.Mutex
	errs   []error
	waited bool
}

// NewLoader returns a loader that resolves components from registry and
// fetches missing content rows from records.
func NewLoader(registry *Registry, records RecordStore) *Loader {
	return &Loader{
		registry: registry,
		records:  records,
	}
}

// LoadOption configures a single scheduled load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	classHint reflect.Type
}

// WithClassHint asserts the type the loaded object must have. Loading fails
// with ErrTypeMismatch when the manifest's class is neither the hinted type
// nor an implementation of it.
func WithClassHint(t reflect.Type) LoadOption {
	return func(o *loadOptions) {
		o.classHint = t
	}
}

// PendingLoad is the handle of one scheduled load. Value and Err are valid
// once the loader's Wait returned.
type PendingLoad struct {
	manifestID uuid.UUID

	value any
	err   error
}

// ManifestID returns the id of the manifest being loaded.
func (p *PendingLoad) ManifestID() uuid.UUID {
	return p.manifestID
}

// Value returns the reassembled object. Valid after Wait.
func (p *PendingLoad) Value() any {
	return p.value
}

// Err returns the load failure, if any. Valid after Wait.
func (p *PendingLoad) Err() error {
	return p.err
}

// LoadSoon schedules the manifest for loading and returns its handle. The
// actual work happens on a background goroutine; the handle settles when
// Wait returns.
func (l *Loader) LoadSoon(ctx context.Context, manifest *Manifest, opts ...LoadOption) *PendingLoad {
	options := &loadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	pending := &PendingLoad{manifestID: manifest.ID}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx := xlog.WithContext(ctx, "manifest", manifest.ID.String())
		value, err := l.loadOne(ctx, manifest, options)
		pending.value, pending.err = value, err
		if err != nil {
			xlog.C(ctx).Warnf("load failed: %v", err)
			l.mu.Lock()
			l.errs = append(l.errs, fmt.Errorf("load %s: %w", manifest.ID, err))
			l.mu.Unlock()
		}
	}()
	return pending
}

// Wait joins every scheduled load and returns the failures as one joined
// error.
func (l *Loader) Wait() error {
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.waited {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "loader already waited on")
	}
	l.waited = true
	return errors.Join(l.errs...)
}

// LoadOne loads a single manifest synchronously.
func LoadOne(ctx context.Context, registry *Registry, records RecordStore, manifest *Manifest, opts ...LoadOption) (any, error) {
	loader := NewLoader(registry, records)
	pending := loader.LoadSoon(ctx, manifest, opts...)
	if err := loader.Wait(); err != nil {
		return nil, err
	}
	return pending.Value(), nil
}

// LoadByID fetches the manifest from the record store and loads it.
func LoadByID(ctx context.Context, registry *Registry, records RecordStore, id uuid.UUID, opts ...LoadOption) (any, error) {
	manifest, err := records.GetManifest(ctx, id)
	if err != nil {
		return nil, err
	}
	return LoadOne(ctx, registry, records, manifest, opts...)
}

// loadOne reassembles one object: resolve the class and unpacker, decode
// every content concurrently, then hand the loaded map to Repack.
func (l *Loader) loadOne(ctx context.Context, manifest *Manifest, options *loadOptions) (any, error) {
	class, err := l.registry.Storable(manifest.ClassID)
	if err != nil {
		return nil, err
	}
	if hint := options.classHint; hint != nil && !classSatisfies(class.Type, hint) {
		return nil, errdefs.Newf(errdefs.ErrTypeMismatch,
			"manifest %s holds a %v, not a %v", manifest.ID, class.Type, hint)
	}
	unpacker, err := l.registry.Unpacker(manifest.UnpackerName)
	if err != nil {
		return nil, err
	}

	rows := manifest.Contents
	if len(rows) == 0 {
		rows, err = l.records.GetContents(ctx, manifest.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch contents: %w", err)
		}
	}

	loadedRows := make([]LoadedContent, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		g.Go(func() error {
			loadedRow, err := l.loadContent(gctx, row)
			if err != nil {
				return fmt.Errorf("content %q: %w", row.ContentKey, err)
			}
			loadedRows[i] = loadedRow
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loaded := NewLoadedMap()
	for i, row := range rows {
		loaded.Set(row.ContentKey, loadedRows[i])
	}

	obj, err := unpacker.Repack(ctx, class, loaded, l.registry)
	if err != nil {
		return nil, errdefs.NewE(errdefs.ErrUnpackerContract,
			fmt.Errorf("repack with %q: %w", unpacker.Name(), err))
	}
	return obj, nil
}

// loadContent decodes one content row back into a value or stream.
func (l *Loader) loadContent(ctx context.Context, row *Content) (LoadedContent, error) {
	storage, err := l.registry.Storage(row.StorageName)
	if err != nil {
		return LoadedContent{}, err
	}
	locator, err := storage.DecodeLocator(string(row.StorageConfig))
	if err != nil {
		return LoadedContent{}, err
	}

	switch row.SerializerKind {
	case KindValue:
		serializer, err := l.registry.Serializer(row.SerializerName)
		if err != nil {
			return LoadedContent{}, err
		}
		data, err := storage.ReadData(ctx, locator)
		if err != nil {
			return LoadedContent{}, fmt.Errorf("read from storage %q: %w", storage.Name(), err)
		}
		value, err := serializer.Deserialize(&Envelope{
			Data:            data,
			ContentType:     row.ContentType,
			ContentEncoding: row.ContentEncoding,
			Config:          row.SerializerConfig,
		})
		if err != nil {
			return LoadedContent{}, fmt.Errorf("deserialize with %q: %w", serializer.Name(), err)
		}
		return LoadedContent{Kind: KindValue, Value: value, Serializer: serializer, Storage: storage, Record: row}, nil

	case KindStream:
		serializer, err := l.registry.StreamSerializer(row.SerializerName)
		if err != nil {
			return LoadedContent{}, err
		}
		stream, err := storage.ReadDataStream(ctx, locator)
		if err != nil {
			return LoadedContent{}, fmt.Errorf("open stream from storage %q: %w", storage.Name(), err)
		}
		values, err := serializer.DeserializeStream(ctx, &StreamEnvelope{
			DataStream:      stream,
			ContentType:     row.ContentType,
			ContentEncoding: row.ContentEncoding,
			Config:          row.SerializerConfig,
		})
		if err != nil {
			xio.CloseAndSkipError(stream)
			return LoadedContent{}, fmt.Errorf("deserialize stream with %q: %w", serializer.Name(), err)
		}
		return LoadedContent{Kind: KindStream, Stream: values, Serializer: serializer, Storage: storage, Record: row}, nil

	default:
		return LoadedContent{}, row.SerializerKind.Validate()
	}
}

// classSatisfies reports whether the class type satisfies the hinted type:
// either the same type or an implementation of a hinted interface.
func classSatisfies(classType, hint reflect.Type) bool {
	if classType == hint {
		return true
	}
	if hint.Kind() == reflect.Interface && classType.Implements(hint) {
		return true
	}
	return false
}
