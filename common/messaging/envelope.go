package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thingflow/thingflow/common/model"
)

// DecodedEventPayload is the message value on the decoded-events and
// device-registration topics. The message key is the device token so that
// all events for one device land in one partition.
type DecodedEventPayload struct {
	SourceID    string                      `json:"source_id"`
	DeviceToken string                      `json:"device_token"`
	Metadata    map[string]string           `json:"metadata,omitempty"`
	Request     *model.DecodedDeviceRequest `json:"request"`
}

// FailedDecodePayload is the message value on the failed-decode topic.
// Payload carries the original bytes untouched so a failed decode can be
// inspected or replayed byte-for-byte.
type FailedDecodePayload struct {
	SourceID string            `json:"source_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
	Reason   string            `json:"reason"`
	Message  string            `json:"message,omitempty"`
}

// EnrichedEventPayload is the message value on the outbound topics: a
// persisted event with its resolved context, ready for downstream
// connectors.
type EnrichedEventPayload struct {
	DeviceToken string                `json:"device_token"`
	Event       *model.PersistedEvent `json:"event"`
	EnrichedAt  time.Time             `json:"enriched_at"`
}

// MarshalDecodedEvent serializes a decoded event payload for the broker.
func MarshalDecodedEvent(p *DecodedEventPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal decoded event payload: %w", err)
	}
	return data, nil
}

// UnmarshalDecodedEvent parses a decoded event payload from the broker.
func UnmarshalDecodedEvent(data []byte) (*DecodedEventPayload, error) {
	var p DecodedEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal decoded event payload: %w", err)
	}
	if p.Request == nil {
		return nil, fmt.Errorf("decoded event payload has no request")
	}
	return &p, nil
}

// MarshalFailedDecode serializes a failed-decode payload for the broker.
func MarshalFailedDecode(p *FailedDecodePayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal failed-decode payload: %w", err)
	}
	return data, nil
}

// UnmarshalFailedDecode parses a failed-decode payload from the broker.
func UnmarshalFailedDecode(data []byte) (*FailedDecodePayload, error) {
	var p FailedDecodePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal failed-decode payload: %w", err)
	}
	return &p, nil
}

// MarshalEnrichedEvent serializes an enriched event payload for the broker.
func MarshalEnrichedEvent(p *EnrichedEventPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched event payload: %w", err)
	}
	return data, nil
}

// UnmarshalEnrichedEvent parses an enriched event payload from the broker.
func UnmarshalEnrichedEvent(data []byte) (*EnrichedEventPayload, error) {
	var p EnrichedEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal enriched event payload: %w", err)
	}
	if p.Event == nil {
		return nil, fmt.Errorf("enriched event payload has no event")
	}
	return &p, nil
}
