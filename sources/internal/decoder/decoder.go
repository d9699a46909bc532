// Package decoder converts raw device payloads into canonical device
// requests. Decoders are wired per event source at startup and never
// swapped mid-stream.
package decoder

import (
	"context"
	"fmt"

	"github.com/thingflow/thingflow/common/model"
)

// FailureReason classifies why a payload could not be decoded.
type FailureReason string

const (
	// ReasonInvalidPayload means the payload was not minimally parseable
	// or carried no device token.
	ReasonInvalidPayload FailureReason = "invalid-payload"

	// ReasonUnknownDevice means the device token did not resolve to a
	// registered device.
	ReasonUnknownDevice FailureReason = "unknown-device"

	// ReasonNoDecoder means no decoder choice predicate matched.
	ReasonNoDecoder FailureReason = "no-applicable-decoder"
)

// DecodeError reports a decode failure. It never propagates past the event
// source boundary; the source routes it to the failed-decode topic.
type DecodeError struct {
	Reason FailureReason
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode failed: %s", e.Reason)
	}
	return fmt.Sprintf("decode failed (%s): %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err with a failure reason.
func NewDecodeError(reason FailureReason, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

// MessageMetadata is the lightweight descriptor extracted from a payload
// for routing decisions. Device and DeviceType are filled in by the
// composite decoder after registry resolution, so nested composites can
// skip the second lookup.
type MessageMetadata struct {
	// DeviceToken identifies the sending device.
	DeviceToken string

	// Parsed is the partially parsed payload used for decoder selection.
	Parsed map[string]any

	// Source carries the receiver-supplied metadata for the payload.
	Source map[string]string

	Device     *model.Device
	DeviceType *model.DeviceType
}

// MetadataExtractor inspects a raw payload and produces a MessageMetadata.
// Implementations must not mutate the payload and must be side-effect-free.
type MetadataExtractor interface {
	ExtractMetadata(payload []byte, source map[string]string) (*MessageMetadata, error)
}

// Decoder converts a raw payload into zero or more device requests. A
// single payload may produce multiple requests, e.g. a registration plus an
// initial measurement.
type Decoder interface {
	Decode(ctx context.Context, payload []byte, metadata *MessageMetadata) ([]*model.DecodedDeviceRequest, error)
}
