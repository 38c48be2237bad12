package stow

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// TypePredicate reports whether a runtime type should be handled by the
// serializer it is bound to. Predicates run after exact and interface based
// inference, in registration order.
type TypePredicate func(reflect.Type) bool

// Registry is an immutable index of serializers, storages, unpackers and
// storable classes. Registries are assembled once by NewRegistry and then
// only read, so lookups are safe for concurrent use. Combining registries
// builds a new one; see WithRegistries.
type Registry struct {
	serializers       *componentSet[Serializer]
	streamSerializers *componentSet[StreamSerializer]
	storages          *componentSet[Storage]
	unpackers         *componentSet[Unpacker]

	classes     []Class
	classByID   map[uuid.UUID]Class
	classByType map[reflect.Type]Class

	serializerTypes       *typeIndex[Serializer]
	streamSerializerTypes *typeIndex[StreamSerializer]

	serializerContentTypes       map[string]Serializer
	streamSerializerContentTypes map[string]StreamSerializer

	predicates       []predicateSpec
	streamPredicates []predicateSpec

	defaultStorage string
}

// predicateSpec binds a predicate to a named serializer. The name is
// resolved at lookup time so overlays keep working.
type predicateSpec struct {
	predicate TypePredicate
	name      string
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	registries        []*Registry
	serializers       []Serializer
	streamSerializers []StreamSerializer
	storages          []Storage
	unpackers         []Unpacker
	storables         []Class
	predicates        []predicateSpec
	streamPredicates  []predicateSpec
	defaultStorage    string
	hasDefaultStorage bool
}

// WithRegistries merges the contents of the given registries, in order, into
// the one being built. Later sources overlay earlier ones by component name;
// explicit components passed to NewRegistry overlay all merged sources.
func WithRegistries(registries ...*Registry) RegistryOption {
	return func(c *registryConfig) {
		c.registries = append(c.registries, registries...)
	}
}

// WithSerializers registers value serializers.
func WithSerializers(serializers ...Serializer) RegistryOption {
	return func(c *registryConfig) {
		c.serializers = append(c.serializers, serializers...)
	}
}

// WithStreamSerializers registers stream serializers.
func WithStreamSerializers(serializers ...StreamSerializer) RegistryOption {
	return func(c *registryConfig) {
		c.streamSerializers = append(c.streamSerializers, serializers...)
	}
}

// WithStorages registers storages.
func WithStorages(storages ...Storage) RegistryOption {
	return func(c *registryConfig) {
		c.storages = append(c.storages, storages...)
	}
}

// WithUnpackers registers unpackers.
func WithUnpackers(unpackers ...Unpacker) RegistryOption {
	return func(c *registryConfig) {
		c.unpackers = append(c.unpackers, unpackers...)
	}
}

// WithStorables registers storable classes.
func WithStorables(classes ...Class) RegistryOption {
	return func(c *registryConfig) {
		c.storables = append(c.storables, classes...)
	}
}

// WithTypePredicate binds types matching the predicate to the named value
// serializer. Predicates are tried after exact and interface matches, in
// registration order.
func WithTypePredicate(predicate TypePredicate, serializerName string) RegistryOption {
	return func(c *registryConfig) {
		c.predicates = append(c.predicates, predicateSpec{predicate: predicate, name: serializerName})
	}
}

// WithStreamTypePredicate binds stream element types matching the predicate
// to the named stream serializer.
func WithStreamTypePredicate(predicate TypePredicate, serializerName string) RegistryOption {
	return func(c *registryConfig) {
		c.streamPredicates = append(c.streamPredicates, predicateSpec{predicate: predicate, name: serializerName})
	}
}

// WithDefaultStorage designates the storage used for contents without a
// storage hint. Overrides any default carried by merged registries.
func WithDefaultStorage(name string) RegistryOption {
	return func(c *registryConfig) {
		c.defaultStorage = name
		c.hasDefaultStorage = true
	}
}

// NewRegistry builds a registry from merged source registries and explicit
// components. All component names are validated; the default storage, when
// designated, must resolve to a registered storage.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Registry{
		serializers:       newComponentSet[Serializer]("serializer"),
		streamSerializers: newComponentSet[StreamSerializer]("stream serializer"),
		storages:          newComponentSet[Storage]("storage"),
		unpackers:         newComponentSet[Unpacker]("unpacker"),
		classByID:         make(map[uuid.UUID]Class),
		classByType:       make(map[reflect.Type]Class),
	}

	// merged sources first, explicit components after, so that explicit
	// arguments always win
	for _, source := range cfg.registries {
		if err := r.mergeFrom(source); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.serializers {
		if err := r.serializers.set(s); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.streamSerializers {
		if err := r.streamSerializers.set(s); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.storages {
		if err := r.storages.set(s); err != nil {
			return nil, err
		}
	}
	for _, u := range cfg.unpackers {
		if err := r.unpackers.set(u); err != nil {
			return nil, err
		}
	}
	for _, class := range cfg.storables {
		if err := r.addClass(class); err != nil {
			return nil, err
		}
	}
	r.predicates = append(r.predicates, cfg.predicates...)
	r.streamPredicates = append(r.streamPredicates, cfg.streamPredicates...)
	if cfg.hasDefaultStorage {
		r.defaultStorage = cfg.defaultStorage
	}

	if err := r.buildIndexes(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error. Intended for
// package-level registry declarations.
func MustNewRegistry(opts ...RegistryOption) *Registry {
	r, err := NewRegistry(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) mergeFrom(source *Registry) error {
	for _, s := range source.serializers.ordered() {
		if err := r.serializers.set(s); err != nil {
			return err
		}
	}
	for _, s := range source.streamSerializers.ordered() {
		if err := r.streamSerializers.set(s); err != nil {
			return err
		}
	}
	for _, s := range source.storages.ordered() {
		if err := r.storages.set(s); err != nil {
			return err
		}
	}
	for _, u := range source.unpackers.ordered() {
		if err := r.unpackers.set(u); err != nil {
			return err
		}
	}
	for _, class := range source.classes {
		if err := r.addClass(class); err != nil {
			return err
		}
	}
	r.predicates = append(r.predicates, source.predicates...)
	r.streamPredicates = append(r.streamPredicates, source.streamPredicates...)
	if source.defaultStorage != "" {
		r.defaultStorage = source.defaultStorage
	}
	return nil
}

func (r *Registry) addClass(class Class) error {
	if class.ID == uuid.Nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "class for type %v has no id", class.Type)
	}
	if class.Type == nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "class %s has no type", class.ID)
	}
	if err := ValidateName(class.Unpacker); err != nil {
		return err
	}
	if _, ok := r.classByID[class.ID]; !ok {
		r.classes = append(r.classes, class)
	} else {
		for i := range r.classes {
			if r.classes[i].ID == class.ID {
				r.classes[i] = class
				break
			}
		}
	}
	r.classByID[class.ID] = class
	r.classByType[class.Type] = class
	return nil
}

// buildIndexes derives the type and content type lookup structures from the
// final component sets and validates cross references.
func (r *Registry) buildIndexes() error {
	r.serializerTypes = newTypeIndex[Serializer]()
	r.serializerContentTypes = make(map[string]Serializer)
	for _, s := range r.serializers.ordered() {
		r.serializerTypes.add(s, s.Types())
		for _, ct := range s.ContentTypes() {
			canonical, err := CanonicalContentType(ct)
			if err != nil {
				return errdefs.Newf(errdefs.ErrInvalidParameter,
					"serializer %q declares content type %q: %w", s.Name(), ct, err)
			}
			if _, ok := r.serializerContentTypes[canonical]; !ok {
				r.serializerContentTypes[canonical] = s
			}
		}
	}

	r.streamSerializerTypes = newTypeIndex[StreamSerializer]()
	r.streamSerializerContentTypes = make(map[string]StreamSerializer)
	for _, s := range r.streamSerializers.ordered() {
		r.streamSerializerTypes.add(s, s.Types())
		for _, ct := range s.ContentTypes() {
			canonical, err := CanonicalContentType(ct)
			if err != nil {
				return errdefs.Newf(errdefs.ErrInvalidParameter,
					"stream serializer %q declares content type %q: %w", s.Name(), ct, err)
			}
			if _, ok := r.streamSerializerContentTypes[canonical]; !ok {
				r.streamSerializerContentTypes[canonical] = s
			}
		}
	}

	for _, spec := range r.predicates {
		if _, ok := r.serializers.get(spec.name); !ok {
			return errdefs.Newf(errdefs.ErrNotRegistered,
				"type predicate references unknown serializer %q", spec.name)
		}
	}
	for _, spec := range r.streamPredicates {
		if _, ok := r.streamSerializers.get(spec.name); !ok {
			return errdefs.Newf(errdefs.ErrNotRegistered,
				"type predicate references unknown stream serializer %q", spec.name)
		}
	}
	if r.defaultStorage != "" {
		if _, ok := r.storages.get(r.defaultStorage); !ok {
			return errdefs.Newf(errdefs.ErrNotRegistered,
				"default storage %q is not registered", r.defaultStorage)
		}
	}
	return nil
}

// Serializer returns the value serializer registered under name.
func (r *Registry) Serializer(name string) (Serializer, error) {
	s, ok := r.serializers.get(name)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no serializer named %q", name)
	}
	return s, nil
}

// StreamSerializer returns the stream serializer registered under name.
func (r *Registry) StreamSerializer(name string) (StreamSerializer, error) {
	s, ok := r.streamSerializers.get(name)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no stream serializer named %q", name)
	}
	return s, nil
}

// Storage returns the storage registered under name.
func (r *Registry) Storage(name string) (Storage, error) {
	s, ok := r.storages.get(name)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no storage named %q", name)
	}
	return s, nil
}

// Unpacker returns the unpacker registered under name.
func (r *Registry) Unpacker(name string) (Unpacker, error) {
	u, ok := r.unpackers.get(name)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no unpacker named %q", name)
	}
	return u, nil
}

// DefaultStorage returns the designated default storage.
func (r *Registry) DefaultStorage() (Storage, error) {
	if r.defaultStorage == "" {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no default storage designated")
	}
	return r.Storage(r.defaultStorage)
}

// Storable returns the class registered under the given id.
func (r *Registry) Storable(id uuid.UUID) (Class, error) {
	class, ok := r.classByID[id]
	if !ok {
		return Class{}, errdefs.Newf(errdefs.ErrNotRegistered, "no storable class with id %s", id)
	}
	return class, nil
}

// StorableByType returns the class whose type is exactly t.
func (r *Registry) StorableByType(t reflect.Type) (Class, error) {
	class, ok := r.classByType[t]
	if !ok {
		return Class{}, errdefs.Newf(errdefs.ErrNotRegistered, "no storable class for type %v", t)
	}
	return class, nil
}

// SerializerByType infers the value serializer for a runtime type: exact
// declared type first, then declared interfaces in registration order, then
// type predicates in registration order.
func (r *Registry) SerializerByType(t reflect.Type) (Serializer, error) {
	if s, ok := r.serializerTypes.lookup(t); ok {
		return s, nil
	}
	for _, spec := range r.predicates {
		if spec.predicate(t) {
			return r.Serializer(spec.name)
		}
	}
	return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no serializer for type %v", t)
}

// StreamSerializerByType infers the stream serializer for the runtime type
// of a stream element. Same resolution order as SerializerByType.
func (r *Registry) StreamSerializerByType(t reflect.Type) (StreamSerializer, error) {
	if s, ok := r.streamSerializerTypes.lookup(t); ok {
		return s, nil
	}
	for _, spec := range r.streamPredicates {
		if spec.predicate(t) {
			return r.StreamSerializer(spec.name)
		}
	}
	return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no stream serializer for type %v", t)
}

// SerializerByContentType returns the value serializer that declared the
// given content type. Parameter order is significant; see ContentType.
func (r *Registry) SerializerByContentType(contentType string) (Serializer, error) {
	canonical, err := CanonicalContentType(contentType)
	if err != nil {
		return nil, err
	}
	s, ok := r.serializerContentTypes[canonical]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no serializer for content type %q", contentType)
	}
	return s, nil
}

// StreamSerializerByContentType returns the stream serializer that declared
// the given content type.
func (r *Registry) StreamSerializerByContentType(contentType string) (StreamSerializer, error) {
	canonical, err := CanonicalContentType(contentType)
	if err != nil {
		return nil, err
	}
	s, ok := r.streamSerializerContentTypes[canonical]
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered, "no stream serializer for content type %q", contentType)
	}
	return s, nil
}

// SerializerNames returns the sorted names of registered value serializers.
func (r *Registry) SerializerNames() []string {
	return sortedNames(r.serializers.items)
}

// StreamSerializerNames returns the sorted names of registered stream
// serializers.
func (r *Registry) StreamSerializerNames() []string {
	return sortedNames(r.streamSerializers.items)
}

// StorageNames returns the sorted names of registered storages.
func (r *Registry) StorageNames() []string {
	return sortedNames(r.storages.items)
}

// UnpackerNames returns the sorted names of registered unpackers.
func (r *Registry) UnpackerNames() []string {
	return sortedNames(r.unpackers.items)
}

// Storables returns the registered classes in registration order.
func (r *Registry) Storables() []Class {
	return slices.Clone(r.classes)
}

func sortedNames[T any](items map[string]T) []string {
	names := lo.Keys(items)
	slices.Sort(names)
	return names
}

// componentSet is an insertion-ordered set of named components. Setting an
// existing name replaces the component but keeps its original position.
type componentSet[T Component] struct {
	kind  string
	names []string
	items map[string]T
}

func newComponentSet[T Component](kind string) *componentSet[T] {
	return &componentSet[T]{kind: kind, items: make(map[string]T)}
}

func (s *componentSet[T]) set(item T) error {
	name := item.Name()
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("%s: %w", s.kind, err)
	}
	if _, ok := s.items[name]; !ok {
		s.names = append(s.names, name)
	}
	s.items[name] = item
	return nil
}

func (s *componentSet[T]) get(name string) (T, bool) {
	item, ok := s.items[name]
	return item, ok
}

func (s *componentSet[T]) ordered() []T {
	items := make([]T, 0, len(s.names))
	for _, name := range s.names {
		items = append(items, s.items[name])
	}
	return items
}

// typeIndex resolves runtime types to components: exact declared types take
// priority, then declared interface types in registration order.
type typeIndex[T Component] struct {
	exact  map[reflect.Type]T
	ifaces []ifaceBinding[T]
}

type ifaceBinding[T Component] struct {
	typ  reflect.Type
	item T
}

func newTypeIndex[T Component]() *typeIndex[T] {
	return &typeIndex[T]{exact: make(map[reflect.Type]T)}
}

func (idx *typeIndex[T]) add(item T, types []reflect.Type) {
	for _, t := range types {
		if t == nil {
			continue
		}
		if t.Kind() == reflect.Interface {
			idx.ifaces = append(idx.ifaces, ifaceBinding[T]{typ: t, item: item})
			continue
		}
		if _, ok := idx.exact[t]; !ok {
			idx.exact[t] = item
		}
	}
}

func (idx *typeIndex[T]) lookup(t reflect.Type) (T, bool) {
	if item, ok := idx.exact[t]; ok {
		return item, true
	}
	for _, binding := range idx.ifaces {
		if t.Implements(binding.typ) {
			return binding.item, true
		}
	}
	var zero T
	return zero, false
}
