package stow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/stow"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
)

// fakeSerializer is a JSON value codec with hooks to misbehave on demand.
type fakeSerializer struct {
	name         string
	types        []reflect.Type
	contentTypes []string
	serializeErr error
	envelope     *stow.Envelope // overrides the serialize result when set
}

func newFakeSerializer(name string, types ...reflect.Type) *fakeSerializer {
	return &fakeSerializer{
		name:         name,
		types:        types,
		contentTypes: []string{"application/json"},
	}
}

func (f *fakeSerializer) Name() string           { return f.name }
func (f *fakeSerializer) Types() []reflect.Type  { return f.types }
func (f *fakeSerializer) ContentTypes() []string { return f.contentTypes }

func (f *fakeSerializer) Serialize(v any) (*stow.Envelope, error) {
	if f.serializeErr != nil {
		return nil, f.serializeErr
	}
	if f.envelope != nil {
		return f.envelope, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &stow.Envelope{Data: data, ContentType: "application/json"}, nil
}

func (f *fakeSerializer) Deserialize(envelope *stow.Envelope) (any, error) {
	var v any
	if err := json.Unmarshal(envelope.Data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// fakeStreamSerializer is a JSON-lines stream codec.
type fakeStreamSerializer struct {
	name         string
	types        []reflect.Type
	contentTypes []string
}

func newFakeStreamSerializer(name string, types ...reflect.Type) *fakeStreamSerializer {
	return &fakeStreamSerializer{
		name:         name,
		types:        types,
		contentTypes: []string{"application/x-ndjson"},
	}
}

func (f *fakeStreamSerializer) Name() string           { return f.name }
func (f *fakeStreamSerializer) Types() []reflect.Type  { return f.types }
func (f *fakeStreamSerializer) ContentTypes() []string { return f.contentTypes }

func (f *fakeStreamSerializer) SerializeStream(_ context.Context, values iter.Seq[any]) (*stow.StreamEnvelope, error) {
	pr, pw := io.Pipe()
	go func() {
		encoder := json.NewEncoder(pw)
		for v, err := range values {
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := encoder.Encode(v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()
	return &stow.StreamEnvelope{DataStream: pr, ContentType: "application/x-ndjson"}, nil
}

func (f *fakeStreamSerializer) DeserializeStream(_ context.Context, envelope *stow.StreamEnvelope) (iter.Seq[any], error) {
	return func(yield func(any, error) bool) {
		defer envelope.DataStream.Close()
		decoder := json.NewDecoder(envelope.DataStream)
		for {
			var v any
			if err := decoder.Decode(&v); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}, nil
}

// fakeLocator is the locator documents fakeStorage hands out.
type fakeLocator struct {
	Key string `json:"key"`
}

// fakeStorage keeps blobs in a map keyed by digest.
type fakeStorage struct {
	name          string
	writeErr      error
	partialStream bool // stop draining streams early

	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage(name string) *fakeStorage {
	return &fakeStorage{name: name, blobs: make(map[string][]byte)}
}

func (f *fakeStorage) Name() string { return f.name }

func (f *fakeStorage) WriteData(ctx context.Context, data []byte, dgst stow.Digest, _ map[string]string) (stow.Locator, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := dgst.Digest.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; !ok {
		f.blobs[key] = bytes.Clone(data)
	}
	return fakeLocator{Key: key}, nil
}

func (f *fakeStorage) ReadData(_ context.Context, locator stow.Locator) ([]byte, error) {
	loc, ok := locator.(fakeLocator)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "foreign locator %T", locator)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[loc.Key]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNoStorageData, "no blob under %q", loc.Key)
	}
	return bytes.Clone(data), nil
}

func (f *fakeStorage) WriteDataStream(ctx context.Context, src *stow.StreamDigester, _ map[string]string) (stow.Locator, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if f.partialStream {
		buf := make([]byte, 4)
		if _, err := io.ReadFull(src, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		return fakeLocator{Key: "partial"}, nil
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	dgst, err := src.Digest(false)
	if err != nil {
		return nil, err
	}
	key := dgst.Digest.Digest.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; !ok {
		f.blobs[key] = data
	}
	return fakeLocator{Key: key}, nil
}

func (f *fakeStorage) ReadDataStream(ctx context.Context, locator stow.Locator) (io.ReadCloser, error) {
	data, err := f.ReadData(ctx, locator)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) EncodeLocator(locator stow.Locator) (string, error) {
	return stow.EncodeLocatorJSON(locator)
}

func (f *fakeStorage) DecodeLocator(encoded string) (stow.Locator, error) {
	return stow.DecodeLocatorJSON[fakeLocator](encoded)
}

func (f *fakeStorage) blobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// fakeUnpacker delegates to configurable unpack and repack functions.
type fakeUnpacker struct {
	name   string
	unpack func(ctx context.Context, obj any, registry *stow.Registry) (*stow.ContentMap, error)
	repack func(ctx context.Context, class stow.Class, contents *stow.LoadedMap, registry *stow.Registry) (any, error)
}

func (f *fakeUnpacker) Name() string { return f.name }

func (f *fakeUnpacker) Unpack(ctx context.Context, obj any, registry *stow.Registry) (*stow.ContentMap, error) {
	return f.unpack(ctx, obj, registry)
}

func (f *fakeUnpacker) Repack(ctx context.Context, class stow.Class, contents *stow.LoadedMap, registry *stow.Registry) (any, error) {
	return f.repack(ctx, class, contents, registry)
}

// document is the storable the pipeline tests run through: a value part and
// a streamed part.
type document struct {
	Meta  any
	Items []any
}

// docUnpacker splits a document into a "meta" value content and an "items"
// stream content, and reassembles it.
func docUnpacker() *fakeUnpacker {
	return &fakeUnpacker{
		name: "document@v1",
		unpack: func(_ context.Context, obj any, _ *stow.Registry) (*stow.ContentMap, error) {
			doc, ok := obj.(*document)
			if !ok {
				return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "not a document: %T", obj)
			}
			contents := stow.NewContentMap()
			contents.Set("meta", stow.NewValueContent(doc.Meta))
			contents.Set("items", stow.NewStreamContent(iter.SliceSeq(doc.Items)))
			return contents, nil
		},
		repack: func(_ context.Context, _ stow.Class, contents *stow.LoadedMap, _ *stow.Registry) (any, error) {
			meta, err := contents.Value("meta")
			if err != nil {
				return nil, err
			}
			stream, err := contents.Stream("items")
			if err != nil {
				return nil, err
			}
			items, err := iter.All(stream)
			if err != nil {
				return nil, err
			}
			return &document{Meta: meta, Items: items}, nil
		},
	}
}

// singleUnpacker stores the whole object under one "value" key.
func singleUnpacker() *fakeUnpacker {
	return hintedUnpacker("single@v1")
}

// linked is a storable whose unpacker persists a body document pointing at a
// sibling content.
type linked struct {
	Title   string
	Payload any
}

// linkedUnpacker stores a "body" content with a ref to the "inner" content
// and resolves the ref on repack.
func linkedUnpacker() *fakeUnpacker {
	return &fakeUnpacker{
		name: "linked@v1",
		unpack: func(_ context.Context, obj any, _ *stow.Registry) (*stow.ContentMap, error) {
			doc, ok := obj.(*linked)
			if !ok {
				return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "not a linked doc: %T", obj)
			}
			contents := stow.NewContentMap()
			contents.Set("body", stow.NewValueContent(map[string]any{
				"title":   doc.Title,
				"payload": stow.NewBodyRef("inner"),
			}))
			contents.Set("inner", stow.NewValueContent(doc.Payload))
			return contents, nil
		},
		repack: func(_ context.Context, _ stow.Class, contents *stow.LoadedMap, registry *stow.Registry) (any, error) {
			body, err := contents.Value("body")
			if err != nil {
				return nil, err
			}
			resolved, err := stow.ResolveBody(body, registry, contents.Value)
			if err != nil {
				return nil, err
			}
			doc, ok := resolved.(map[string]any)
			if !ok {
				return nil, errdefs.Newf(errdefs.ErrUnpackerContract, "body resolved to %T", resolved)
			}
			title, _ := doc["title"].(string)
			return &linked{Title: title, Payload: doc["payload"]}, nil
		},
	}
}

// hintedUnpacker is singleUnpacker with content options applied, used to
// pin serializers or storages in tests.
func hintedUnpacker(name string, opts ...stow.ContentOption) *fakeUnpacker {
	return &fakeUnpacker{
		name: name,
		unpack: func(_ context.Context, obj any, _ *stow.Registry) (*stow.ContentMap, error) {
			contents := stow.NewContentMap()
			contents.Set("value", stow.NewValueContent(obj, opts...))
			return contents, nil
		},
		repack: func(_ context.Context, _ stow.Class, contents *stow.LoadedMap, _ *stow.Registry) (any, error) {
			return contents.Value("value")
		},
	}
}

// memRecords is an in-memory RecordStore for round-trip tests.
type memRecords struct {
	mu        sync.Mutex
	manifests map[uuid.UUID]*stow.Manifest
	commits   int
	commitErr error
}

func newMemRecords() *memRecords {
	return &memRecords{manifests: make(map[uuid.UUID]*stow.Manifest)}
}

func (r *memRecords) CommitManifests(_ context.Context, manifests []*stow.Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	for _, m := range manifests {
		if _, ok := r.manifests[m.ID]; ok {
			return errdefs.Newf(errdefs.ErrAlreadyExists, "manifest %s already committed", m.ID)
		}
	}
	for _, m := range manifests {
		r.manifests[m.ID] = m
	}
	r.commits++
	return nil
}

func (r *memRecords) GetManifest(_ context.Context, id uuid.UUID) (*stow.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.manifests[id]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotFound, "no manifest %s", id)
	}
	return m, nil
}

func (r *memRecords) ListManifests(_ context.Context, opts ...stow.ListOption) ([]*stow.Manifest, error) {
	options := stow.MakeListOptions(opts...)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*stow.Manifest
	for _, m := range r.manifests {
		if !tagsMatch(m.Tags, options.Tags) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if options.Limit > 0 && len(out) > options.Limit {
		out = out[:options.Limit]
	}
	return out, nil
}

func (r *memRecords) GetContents(_ context.Context, manifestID uuid.UUID) ([]*stow.Content, error) {
	m, err := r.GetManifest(context.Background(), manifestID)
	if err != nil {
		return nil, err
	}
	return m.Contents, nil
}

func (r *memRecords) committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.manifests)
}

func tagsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
