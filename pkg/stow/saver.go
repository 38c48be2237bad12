package stow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/smallnest/deepcopy"
	"golang.org/x/sync/errgroup"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
	"github.com/wuxler/stowage/pkg/util/xio"
	"github.com/wuxler/stowage/pkg/xlog"
)

// Saver schedules object saves and commits them as one batch. Each
// SaveSoon call unpacks, encodes and stores one object concurrently with its
// siblings; Wait joins all scheduled saves, writes the successful manifests
// to the record store in a single transaction and returns the failures as
// one joined error. A failed object never aborts its siblings.
//
// A Saver is single-shot: schedule, Wait once, discard.
type Saver struct {
	registry *Registry
	records  RecordStore
	clock    clock.Clock

	wg sync.WaitGroup

	mu        sync.Mutex
	manifests []*Manifest
	errs      []error
	waited    bool
}

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithSaverClock overrides the clock used for manifest timestamps.
func WithSaverClock(c clock.Clock) SaverOption {
	return func(s *Saver) {
		s.clock = c
	}
}

// NewSaver returns a saver that resolves components from registry and
// commits manifests to records.
func NewSaver(registry *Registry, records RecordStore, opts ...SaverOption) *Saver {
	s := &Saver{
		registry: registry,
		records:  records,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveOption configures a single scheduled save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	tags map[string]string
}

// WithTags attaches free-form labels to the manifest. Storage drivers also
// receive the tags and may use them for placement. The map is copied at
// scheduling time; later mutations by the caller do not leak into the save.
func WithTags(tags map[string]string) SaveOption {
	return func(o *saveOptions) {
		o.tags = tags
	}
}

func makeSaveOptions(opts ...SaveOption) *saveOptions {
	options := &saveOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.tags != nil {
		options.tags = deepcopy.Copy(options.tags)
	}
	return options
}

// SaveSoon schedules obj for saving and immediately returns the manifest id
// it will be committed under. The actual work happens on a background
// goroutine; failures surface from Wait.
func (s *Saver) SaveSoon(ctx context.Context, obj any, opts ...SaveOption) uuid.UUID {
	id := uuid.New()
	options := makeSaveOptions(opts...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := xlog.WithContext(ctx, "manifest", id.String())
		manifest, err := s.saveOne(ctx, id, obj, options)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			xlog.C(ctx).Warnf("save failed: %v", err)
			s.errs = append(s.errs, fmt.Errorf("save %s: %w", id, err))
			return
		}
		s.manifests = append(s.manifests, manifest)
	}()
	return id
}

// Wait joins every scheduled save, commits the successful manifests in one
// record store transaction and returns them. Failures of individual saves
// and a failed commit are joined into the returned error; when the commit
// fails no manifest of the batch is committed.
func (s *Saver) Wait(ctx context.Context) ([]*Manifest, error) {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waited {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "saver already waited on")
	}
	s.waited = true

	manifests := s.manifests
	errs := s.errs
	if len(manifests) > 0 {
		if err := s.records.CommitManifests(ctx, manifests); err != nil {
			errs = append(errs, fmt.Errorf("commit %d manifests: %w", len(manifests), err))
			return nil, errors.Join(errs...)
		}
	}
	return manifests, errors.Join(errs...)
}

// SaveOne saves a single object synchronously: schedule, wait, commit.
func SaveOne(ctx context.Context, registry *Registry, records RecordStore, obj any, opts ...SaveOption) (*Manifest, error) {
	saver := NewSaver(registry, records)
	id := saver.SaveSoon(ctx, obj, opts...)
	manifests, err := saver.Wait(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, errdefs.Newf(errdefs.ErrNotFound, "manifest %s missing from committed batch", id)
}

// saveOne assembles the manifest for one object: resolve its class and
// unpacker, unpack it, then encode and store every content concurrently.
func (s *Saver) saveOne(ctx context.Context, id uuid.UUID, obj any, options *saveOptions) (*Manifest, error) {
	if obj == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "cannot save a nil object")
	}
	class, err := s.registry.StorableByType(reflect.TypeOf(obj))
	if err != nil {
		return nil, err
	}
	unpacker, err := s.registry.Unpacker(class.Unpacker)
	if err != nil {
		return nil, err
	}

	contents, err := unpacker.Unpack(ctx, obj, s.registry)
	if err != nil {
		return nil, fmt.Errorf("unpack with %q: %w", unpacker.Name(), err)
	}
	if contents == nil {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"unpacker %q returned no contents", unpacker.Name())
	}

	now := s.clock.Now().UTC()
	manifest := &Manifest{
		ID:           id,
		ClassID:      class.ID,
		UnpackerName: unpacker.Name(),
		Tags:         options.tags,
		CreatedAt:    now,
	}

	keys := contents.Keys()
	rows := make([]*Content, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		content, _ := contents.Get(key)
		g.Go(func() error {
			row, err := s.saveContent(gctx, id, key, content, options.tags, now)
			if err != nil {
				return fmt.Errorf("content %q: %w", key, err)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	manifest.Contents = rows
	return manifest, nil
}

func (s *Saver) saveContent(ctx context.Context, manifestID uuid.UUID, key string, content UnpackedContent, tags map[string]string, now time.Time) (*Content, error) {
	switch content.Kind() {
	case KindValue:
		return s.saveValue(ctx, manifestID, key, content, tags, now)
	case KindStream:
		return s.saveStream(ctx, manifestID, key, content, tags, now)
	default:
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"content is neither a value nor a value stream")
	}
}

func (s *Saver) saveValue(ctx context.Context, manifestID uuid.UUID, key string, content UnpackedContent, tags map[string]string, now time.Time) (*Content, error) {
	serializer, err := s.valueSerializerFor(content)
	if err != nil {
		return nil, err
	}
	storage, err := s.storageFor(content)
	if err != nil {
		return nil, err
	}

	envelope, err := serializer.Serialize(content.Value())
	if err != nil {
		return nil, fmt.Errorf("serialize with %q: %w", serializer.Name(), err)
	}
	if err := validateEnvelope(serializer.Name(), envelope); err != nil {
		return nil, err
	}

	dgst := NewDigest(envelope.Data, envelope.ContentType, envelope.ContentEncoding)
	locator, err := storage.WriteData(ctx, envelope.Data, dgst, tags)
	if err != nil {
		return nil, fmt.Errorf("write to storage %q: %w", storage.Name(), err)
	}
	return s.newContentRow(manifestID, key, dgst, serializer.Name(), envelope.Config, KindValue, storage, locator, now)
}

func (s *Saver) saveStream(ctx context.Context, manifestID uuid.UUID, key string, content UnpackedContent, tags map[string]string, now time.Time) (*Content, error) {
	values := content.Stream()
	if values == nil {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract, "stream content carries no stream")
	}

	serializer, err := s.streamSerializerFor(content, &values)
	if err != nil {
		return nil, err
	}
	storage, err := s.storageFor(content)
	if err != nil {
		return nil, err
	}

	envelope, err := serializer.SerializeStream(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("serialize stream with %q: %w", serializer.Name(), err)
	}
	if err := validateStreamEnvelope(serializer.Name(), envelope); err != nil {
		return nil, err
	}
	defer xio.CloseAndSkipError(envelope.DataStream)

	digester := NewStreamDigester(envelope.DataStream, envelope.ContentType, envelope.ContentEncoding)
	locator, err := storage.WriteDataStream(ctx, digester, tags)
	if err != nil {
		return nil, fmt.Errorf("write stream to storage %q: %w", storage.Name(), err)
	}
	dgst, err := digester.Digest(false)
	if err != nil {
		// the driver reported success without draining the stream, so the
		// digest does not cover the full payload
		return nil, errdefs.NewE(errdefs.ErrStorageDidNotConsumeStream,
			fmt.Errorf("storage %q: %w", storage.Name(), err))
	}
	return s.newContentRow(manifestID, key, dgst.Digest, serializer.Name(), envelope.Config, KindStream, storage, locator, now)
}

func (s *Saver) valueSerializerFor(content UnpackedContent) (Serializer, error) {
	if hint := content.SerializerHint(); hint != "" {
		return s.registry.Serializer(hint)
	}
	return s.registry.SerializerByType(reflect.TypeOf(content.Value()))
}

// streamSerializerFor resolves the stream serializer, peeking the first
// element for type inference when no hint pins one. The peeked element is
// not lost: values is replaced by a sequence that replays it.
func (s *Saver) streamSerializerFor(content UnpackedContent, values *iter.Seq[any]) (StreamSerializer, error) {
	if hint := content.SerializerHint(); hint != "" {
		return s.registry.StreamSerializer(hint)
	}
	head, rest, ok, err := iter.Peek(*values)
	if err != nil {
		return nil, fmt.Errorf("peek stream head: %w", err)
	}
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered,
			"cannot infer a stream serializer for an empty stream without a hint")
	}
	*values = rest
	return s.registry.StreamSerializerByType(reflect.TypeOf(head))
}

func (s *Saver) storageFor(content UnpackedContent) (Storage, error) {
	if hint := content.StorageHint(); hint != "" {
		return s.registry.Storage(hint)
	}
	return s.registry.DefaultStorage()
}

func (s *Saver) newContentRow(manifestID uuid.UUID, key string, dgst Digest, serializerName string, config []byte, kind Kind, storage Storage, locator Locator, now time.Time) (*Content, error) {
	encoded, err := storage.EncodeLocator(locator)
	if err != nil {
		return nil, fmt.Errorf("encode locator of storage %q: %w", storage.Name(), err)
	}
	return &Content{
		ID:                   uuid.New(),
		ManifestID:           manifestID,
		ContentKey:           key,
		ContentType:          dgst.ContentType,
		ContentEncoding:      dgst.ContentEncoding,
		ContentHash:          dgst.Hex(),
		ContentHashAlgorithm: dgst.Algorithm(),
		ContentSize:          dgst.Size,
		SerializerName:       serializerName,
		SerializerConfig:     config,
		SerializerKind:       kind,
		StorageName:          storage.Name(),
		StorageConfig:        []byte(encoded),
		CreatedAt:            now,
	}, nil
}
