package stow

import (
	"context"
	"encoding/json"
	"io"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// Locator is an opaque, driver-defined handle to a stored payload. Callers
// obtain locators from writes and pass them back to reads unchanged; only
// the storage that produced a locator can interpret it.
type Locator any

// Storage persists encoded payloads keyed by their digest. Writes are
// idempotent: writing bytes that hash to an existing key is a no-op that
// returns a locator equivalent to the original one.
type Storage interface {
	Component

	// WriteData persists data under its digest and returns a locator for it.
	// dgst must be the digest of data.
	WriteData(ctx context.Context, data []byte, dgst Digest, tags map[string]string) (Locator, error)

	// ReadData fetches the payload identified by the locator. Returns
	// ErrNoStorageData if the payload is gone.
	ReadData(ctx context.Context, locator Locator) ([]byte, error)

	// WriteDataStream drains src to completion and persists the bytes under
	// the digest computed while draining. The driver must consume src to EOF
	// before keying the payload; on error or cancellation any partially
	// written state is discarded.
	WriteDataStream(ctx context.Context, src *StreamDigester, tags map[string]string) (Locator, error)

	// ReadDataStream opens the payload identified by the locator for
	// streamed reading. The caller owns the returned reader.
	ReadDataStream(ctx context.Context, locator Locator) (io.ReadCloser, error)

	// EncodeLocator renders the locator as a JSON document for persistence
	// in a manifest.
	EncodeLocator(locator Locator) (string, error)

	// DecodeLocator parses a document produced by EncodeLocator.
	DecodeLocator(encoded string) (Locator, error)
}

// EncodeLocatorJSON marshals a locator as a JSON document. Most storage
// drivers implement EncodeLocator with it.
func EncodeLocatorJSON(locator Locator) (string, error) {
	data, err := json.Marshal(locator)
	if err != nil {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "encode locator: %w", err)
	}
	return string(data), nil
}

// DecodeLocatorJSON unmarshals a JSON locator document into L. Most storage
// drivers implement DecodeLocator with it.
func DecodeLocatorJSON[L any](encoded string) (L, error) {
	var locator L
	if err := json.Unmarshal([]byte(encoded), &locator); err != nil {
		return locator, errdefs.Newf(errdefs.ErrInvalidParameter, "decode locator %q: %w", encoded, err)
	}
	return locator, nil
}
