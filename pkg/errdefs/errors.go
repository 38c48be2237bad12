package errdefs

import "errors"

var (
	// ErrNotFound signals that the requested object doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParameter signals that the user input is invalid.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAlreadyExists signals that the resource already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupported indicates that the action was not supported.
	ErrUnsupported = errors.New("unsupported")

	// ErrBadComponentName signals that a component was registered with a name
	// that does not conform to the versioned name grammar.
	ErrBadComponentName = errors.New("bad component name")

	// ErrNotRegistered signals a registry lookup miss for a storable class,
	// serializer, storage or unpacker.
	ErrNotRegistered = errors.New("not registered")

	// ErrTypeMismatch signals that the class hinted at load time is not
	// satisfied by the class recorded in the manifest.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrIncompleteStream signals that a strict digest was requested before
	// the wrapped stream reached EOF.
	ErrIncompleteStream = errors.New("incomplete stream")

	// ErrStorageDidNotConsumeStream signals that a storage driver returned
	// from a streaming write without draining the source. This is a bug in
	// the driver.
	ErrStorageDidNotConsumeStream = errors.New("storage did not consume stream")

	// ErrNoStorageData signals a storage read against a locator that no
	// longer references any data.
	ErrNoStorageData = errors.New("no storage data")

	// ErrIntegrity signals a database constraint violation or an invalid
	// JSON document bound to a JSON column.
	ErrIntegrity = errors.New("integrity violation")

	// ErrSerializerContract signals that a serializer returned an envelope
	// missing required fields.
	ErrSerializerContract = errors.New("serializer contract violation")

	// ErrUnpackerContract signals that an unpacker returned a content that
	// is neither a value nor a value stream, or that repacking failed.
	ErrUnpackerContract = errors.New("unpacker contract violation")

	// ErrContentHashMismatch signals that bytes read back from storage do
	// not hash to the recorded content hash.
	ErrContentHashMismatch = errors.New("content hash mismatch")
)
