package decoder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thingflow/thingflow/common/model"
)

// deviceTokenField is the JSON field carrying the device token.
const deviceTokenField = "device_token"

// JSONMetadataExtractor locates the device token in a JSON payload. The
// token may alternatively be supplied by the receiver in the source
// metadata under "device_token" (some transports carry identity out of
// band, e.g. in an MQTT topic segment).
type JSONMetadataExtractor struct{}

// ExtractMetadata parses the payload and locates the device token.
func (JSONMetadataExtractor) ExtractMetadata(payload []byte, source map[string]string) (*MessageMetadata, error) {
	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("payload is not valid JSON: %w", err))
	}

	token, _ := parsed[deviceTokenField].(string)
	if token == "" {
		token = source[deviceTokenField]
	}
	if token == "" {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("payload carries no device token"))
	}

	return &MessageMetadata{
		DeviceToken: token,
		Parsed:      parsed,
		Source:      source,
	}, nil
}

// jsonBatch is the wire shape accepted by JSONBatchDecoder.
type jsonBatch struct {
	DeviceToken      string                                `json:"device_token"`
	Measurements     []*model.MeasurementCreateRequest     `json:"measurements,omitempty"`
	Locations        []*model.LocationCreateRequest        `json:"locations,omitempty"`
	Alerts           []*model.AlertCreateRequest           `json:"alerts,omitempty"`
	CommandResponses []*model.CommandResponseCreateRequest `json:"command_responses,omitempty"`
	StateChanges     []*model.StateChangeCreateRequest     `json:"state_changes,omitempty"`
	Registration     *model.RegistrationCreateRequest      `json:"registration,omitempty"`
}

// JSONBatchDecoder decodes a JSON document carrying a device token plus
// lists of event create requests into individual device requests.
type JSONBatchDecoder struct{}

// Decode parses the batch document and emits one request per entry. Each
// emitted request is validated before being returned.
func (JSONBatchDecoder) Decode(ctx context.Context, payload []byte, metadata *MessageMetadata) ([]*model.DecodedDeviceRequest, error) {
	var batch jsonBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("payload is not a valid event batch: %w", err))
	}

	token := batch.DeviceToken
	if token == "" && metadata != nil {
		token = metadata.DeviceToken
	}
	if token == "" {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("event batch carries no device token"))
	}

	var requests []*model.DecodedDeviceRequest
	if batch.Registration != nil {
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, Registration: batch.Registration})
	}
	for _, m := range batch.Measurements {
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, Measurement: m})
	}
	for _, l := range batch.Locations {
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, Location: l})
	}
	for _, a := range batch.Alerts {
		a.ApplyDefaults()
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, Alert: a})
	}
	for _, cr := range batch.CommandResponses {
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, CommandResponse: cr})
	}
	for _, sc := range batch.StateChanges {
		requests = append(requests, &model.DecodedDeviceRequest{DeviceToken: token, StateChange: sc})
	}

	if len(requests) == 0 {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("event batch carries no events"))
	}

	for _, req := range requests {
		if err := req.Validate(); err != nil {
			return nil, NewDecodeError(ReasonInvalidPayload, err)
		}
	}
	return requests, nil
}
