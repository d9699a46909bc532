package decoder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thingflow/thingflow/common/model"
)

func TestJSONMetadataExtractor(t *testing.T) {
	extractor := JSONMetadataExtractor{}

	t.Run("token in payload", func(t *testing.T) {
		md, err := extractor.ExtractMetadata([]byte(`{"device_token":"dev-9","measurements":[]}`), nil)
		require.NoError(t, err)
		assert.Equal(t, "dev-9", md.DeviceToken)
		assert.Contains(t, md.Parsed, "measurements")
	})

	t.Run("token from source metadata", func(t *testing.T) {
		md, err := extractor.ExtractMetadata([]byte(`{}`), map[string]string{"device_token": "dev-7"})
		require.NoError(t, err)
		assert.Equal(t, "dev-7", md.DeviceToken)
	})

	t.Run("empty token fails", func(t *testing.T) {
		_, err := extractor.ExtractMetadata([]byte(`{"device_token":""}`), nil)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, ReasonInvalidPayload, de.Reason)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		payload := []byte(`{"device_token":"dev-9"}`)
		before := string(payload)
		_, err := extractor.ExtractMetadata(payload, nil)
		require.NoError(t, err)
		assert.Equal(t, before, string(payload))
	})
}

func TestJSONBatchDecoder_MultipleEvents(t *testing.T) {
	payload := []byte(`{
		"device_token": "dev-1",
		"registration": {"device_type_token": "tracker"},
		"measurements": [
			{"name": "fuel.level", "value": 0.8},
			{"name": "engine.temp", "value": 91.2}
		],
		"alerts": [{"type": "engine.overheat", "message": "hot"}]
	}`)

	requests, err := JSONBatchDecoder{}.Decode(context.Background(), payload, nil)
	require.NoError(t, err)
	require.Len(t, requests, 4)

	// A registration plus its initial events from one payload.
	assert.Equal(t, model.EventTypeRegistration, requests[0].Type())
	assert.Equal(t, model.EventTypeMeasurement, requests[1].Type())
	assert.Equal(t, model.EventTypeMeasurement, requests[2].Type())
	assert.Equal(t, model.EventTypeAlert, requests[3].Type())

	for _, req := range requests {
		assert.Equal(t, "dev-1", req.DeviceToken)
	}

	// Alert defaults applied at decode time.
	assert.Equal(t, model.AlertSourceDevice, requests[3].Alert.Source)
	assert.Equal(t, model.AlertLevelInfo, requests[3].Alert.Level)
}

func TestJSONBatchDecoder_TokenFromMetadata(t *testing.T) {
	payload := []byte(`{"measurements":[{"name":"rpm","value":1200}]}`)
	md := &MessageMetadata{DeviceToken: "dev-5"}

	requests, err := JSONBatchDecoder{}.Decode(context.Background(), payload, md)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "dev-5", requests[0].DeviceToken)
}

func TestJSONBatchDecoder_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `--`},
		{"no events", `{"device_token":"dev-1"}`},
		{"no token anywhere", `{"measurements":[{"name":"rpm","value":1}]}`},
		{"invalid event", `{"device_token":"dev-1","alerts":[{"message":"missing type"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONBatchDecoder{}.Decode(context.Background(), []byte(tt.payload), nil)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, ReasonInvalidPayload, de.Reason)
		})
	}
}
