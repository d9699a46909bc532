package messaging

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thingflow/thingflow/common/model"
)

func TestFailedDecodePayload_RoundTripsOriginalBytes(t *testing.T) {
	// The original payload must survive byte-for-byte, including bytes
	// that are not valid UTF-8 or JSON.
	original := []byte{0x00, 0xff, 0x7b, 0x22, 0xfe, 0x0a}

	data, err := MarshalFailedDecode(&FailedDecodePayload{
		SourceID: "mqtt-1",
		Metadata: map[string]string{"mqtt.topic": "devices/up"},
		Payload:  original,
		Reason:   "invalid-payload",
		Message:  "payload is not minimally parseable",
	})
	require.NoError(t, err)

	decoded, err := UnmarshalFailedDecode(data)
	require.NoError(t, err)

	if !bytes.Equal(decoded.Payload, original) {
		t.Errorf("payload bytes changed in transit: %x vs %x", decoded.Payload, original)
	}
	assert.Equal(t, "mqtt-1", decoded.SourceID)
	assert.Equal(t, "invalid-payload", decoded.Reason)
}

func TestDecodedEventPayload_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	payload := &DecodedEventPayload{
		SourceID:    "mqtt-1",
		DeviceToken: "dev-42",
		Request: &model.DecodedDeviceRequest{
			DeviceToken: "dev-42",
			Measurement: &model.MeasurementCreateRequest{
				EventCreateRequest: model.EventCreateRequest{
					EventDate:   &now,
					AlternateID: "abc123",
				},
				Name:  "engine.temp",
				Value: 81.5,
			},
		},
	}

	data, err := MarshalDecodedEvent(payload)
	require.NoError(t, err)

	decoded, err := UnmarshalDecodedEvent(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.Request)
	assert.Equal(t, model.EventTypeMeasurement, decoded.Request.Type())
	assert.Equal(t, "abc123", decoded.Request.AlternateID())
	assert.Equal(t, "dev-42", decoded.DeviceToken)
}

func TestUnmarshalDecodedEvent_RejectsEmptyRequest(t *testing.T) {
	_, err := UnmarshalDecodedEvent([]byte(`{"source_id":"s1","device_token":"d1"}`))
	assert.Error(t, err)

	_, err = UnmarshalDecodedEvent([]byte(`not json`))
	assert.Error(t, err)
}
