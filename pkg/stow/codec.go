package stow

import (
	"context"
	"encoding/json"
	"io"
	"reflect"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xgeneric/iter"
)

// Envelope carries the encoded form of a single value together with the
// metadata needed to decode it again.
type Envelope struct {
	// Data is the encoded payload.
	Data []byte
	// ContentType is the media type of Data.
	ContentType string
	// ContentEncoding is the optional transfer encoding applied on top of
	// ContentType. Empty means identity.
	ContentEncoding string
	// Config is an optional serializer-specific JSON document persisted next
	// to the content and handed back verbatim on decode.
	Config json.RawMessage
}

// StreamEnvelope is the streamed counterpart of Envelope. The payload is
// produced lazily; the consumer owns DataStream and must close it.
type StreamEnvelope struct {
	// DataStream yields the encoded payload.
	DataStream io.ReadCloser
	// ContentType is the media type of the streamed bytes.
	ContentType string
	// ContentEncoding is the optional transfer encoding applied on top of
	// ContentType. Empty means identity.
	ContentEncoding string
	// Config is an optional serializer-specific JSON document persisted next
	// to the content and handed back verbatim on decode.
	Config json.RawMessage
}

// Serializer encodes single values to byte payloads and back.
type Serializer interface {
	Component

	// Types returns the Go types the serializer accepts, most specific
	// first. Interface types act as covariant matches during inference.
	Types() []reflect.Type
	// ContentTypes returns the media types the serializer can decode, used
	// to resolve a codec from persisted metadata when the recorded
	// serializer is not registered.
	ContentTypes() []string
	// Serialize encodes v into an envelope.
	Serialize(v any) (*Envelope, error)
	// Deserialize decodes the envelope produced by Serialize.
	Deserialize(envelope *Envelope) (any, error)
}

// StreamSerializer encodes sequences of values to byte streams and back.
// Implementations must be lazy in both directions: SerializeStream must not
// drain values before the returned stream is read, and DeserializeStream
// must not drain the envelope before the returned sequence is iterated.
type StreamSerializer interface {
	Component

	// Types returns the Go types of the stream elements the serializer
	// accepts, most specific first.
	Types() []reflect.Type
	// ContentTypes returns the media types the serializer can decode.
	ContentTypes() []string
	// SerializeStream encodes the sequence into a streamed envelope.
	SerializeStream(ctx context.Context, values iter.Seq[any]) (*StreamEnvelope, error)
	// DeserializeStream decodes the streamed envelope back into a sequence.
	// The returned sequence owns the envelope stream and closes it when the
	// iteration stops.
	DeserializeStream(ctx context.Context, envelope *StreamEnvelope) (iter.Seq[any], error)
}

// validateEnvelope checks the contract every Serialize result must satisfy.
func validateEnvelope(name string, envelope *Envelope) error {
	if envelope == nil {
		return errdefs.Newf(errdefs.ErrSerializerContract,
			"serializer %q returned no envelope", name)
	}
	if envelope.Data == nil {
		return errdefs.Newf(errdefs.ErrSerializerContract,
			"serializer %q returned an envelope without data", name)
	}
	return validateEnvelopeMeta(name, envelope.ContentType, envelope.Config)
}

// validateStreamEnvelope checks the contract every SerializeStream result
// must satisfy.
func validateStreamEnvelope(name string, envelope *StreamEnvelope) error {
	if envelope == nil {
		return errdefs.Newf(errdefs.ErrSerializerContract,
			"serializer %q returned no envelope", name)
	}
	if envelope.DataStream == nil {
		return errdefs.Newf(errdefs.ErrSerializerContract,
			"serializer %q returned an envelope without a data stream", name)
	}
	return validateEnvelopeMeta(name, envelope.ContentType, envelope.Config)
}

func validateEnvelopeMeta(name, contentType string, config json.RawMessage) error {
	if _, err := ParseContentType(contentType); err != nil {
		return errdefs.NewE(errdefs.ErrSerializerContract, err)
	}
	if len(config) > 0 && !json.Valid(config) {
		return errdefs.Newf(errdefs.ErrSerializerContract,
			"serializer %q returned a non-JSON config", name)
	}
	return nil
}
