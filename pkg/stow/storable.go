package stow

import (
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// Class binds a Go type to a stable class id and to the unpacker that knows
// how to split and reassemble instances of the type. The id, not the type
// name, is what manifests record, so types can be renamed or moved without
// invalidating stored data.
type Class struct {
	// ID is the stable identity of the class.
	ID uuid.UUID
	// Type is the Go type instances of the class have at runtime.
	Type reflect.Type
	// Unpacker is the versioned name of the unpacker responsible for the
	// class.
	Unpacker string
}

// NewClass builds the class binding T to the given id and unpacker. The id
// accepts 8 to 32 hex digits, dashes ignored; short ids are padded with
// leading zeros so that human-chosen ids like "c0ffee01" stay readable.
func NewClass[T any](id string, unpackerName string) (Class, error) {
	classID, err := ParseClassID(id)
	if err != nil {
		return Class{}, err
	}
	if err := ValidateName(unpackerName); err != nil {
		return Class{}, err
	}
	return Class{
		ID:       classID,
		Type:     reflect.TypeFor[T](),
		Unpacker: unpackerName,
	}, nil
}

// MustClass is NewClass that panics on error. Intended for package-level
// class declarations.
func MustClass[T any](id string, unpackerName string) Class {
	class, err := NewClass[T](id, unpackerName)
	if err != nil {
		panic(err)
	}
	return class
}

// classIDRegexp matches 8 to 32 hex digits after dash removal.
var classIDRegexp = re(anchored(`[0-9a-f]{8,32}`))

// ParseClassID normalizes a class id string into a UUID. Dashes are
// stripped, the rest must be 8 to 32 lower or upper case hex digits, and
// anything shorter than 32 digits is left-padded with zeros.
func ParseClassID(s string) (uuid.UUID, error) {
	normalized := strings.ToLower(strings.ReplaceAll(s, "-", ""))
	if !classIDRegexp.MatchString(normalized) {
		return uuid.Nil, errdefs.Newf(errdefs.ErrInvalidParameter,
			"class id %q must be 8 to 32 hex digits", s)
	}
	padded := strings.Repeat("0", 32-len(normalized)) + normalized
	classID, err := uuid.Parse(padded)
	if err != nil {
		return uuid.Nil, errdefs.Newf(errdefs.ErrInvalidParameter, "class id %q: %w", s, err)
	}
	return classID, nil
}
