package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/model"
	"github.com/thingflow/thingflow/sources/internal/decoder"
)

type capturedMessage struct {
	key   string
	value []byte
}

type fakePublisher struct {
	topic    string
	sendErr  error
	messages []capturedMessage
	closed   bool
}

func (f *fakePublisher) Topic() string { return f.topic }

func (f *fakePublisher) Send(_ context.Context, key string, value []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, capturedMessage{key: key, value: value})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeDecoder struct {
	requests []*model.DecodedDeviceRequest
	err      error
}

func (f *fakeDecoder) Decode(context.Context, []byte, *decoder.MessageMetadata) ([]*model.DecodedDeviceRequest, error) {
	return f.requests, f.err
}

type fakeDedup struct {
	duplicates map[string]bool
	err        error
	calls      int
}

func (f *fakeDedup) IsDuplicate(_ context.Context, req *model.DecodedDeviceRequest) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.duplicates[req.AlternateID()], nil
}

func testProducers() (*TenantProducers, *fakePublisher, *fakePublisher, *fakePublisher) {
	decoded := &fakePublisher{topic: "thingflow.prod1.tenant.acme.event-source-decoded-events"}
	registration := &fakePublisher{topic: "thingflow.prod1.tenant.acme.inbound-device-registration-events"}
	failed := &fakePublisher{topic: "thingflow.prod1.tenant.acme.event-source-failed-decode-events"}
	return &TenantProducers{
		Tenant:       "acme",
		Decoded:      decoded,
		Registration: registration,
		FailedDecode: failed,
	}, decoded, registration, failed
}

func measurement(token, alternateID string) *model.DecodedDeviceRequest {
	return &model.DecodedDeviceRequest{
		DeviceToken: token,
		Measurement: &model.MeasurementCreateRequest{
			EventCreateRequest: model.EventCreateRequest{AlternateID: alternateID},
			Name:               "fuel.level",
			Value:              61.2,
		},
	}
}

func TestEventSource_ForwardsByVariant(t *testing.T) {
	producers, decodedPub, registrationPub, failedPub := testProducers()
	dec := &fakeDecoder{requests: []*model.DecodedDeviceRequest{
		{
			DeviceToken: "truck-7",
			Registration: &model.RegistrationCreateRequest{
				DeviceTypeToken: "gps-tracker",
			},
		},
		measurement("truck-7", ""),
	}}

	src := NewEventSource("src-mqtt", "acme", dec, nil, producers, logging.Default())
	err := src.OnEncodedEventReceived(context.Background(), []byte(`{}`), map[string]string{"mqtt.topic": "devices/truck-7"})
	require.NoError(t, err)

	require.Len(t, registrationPub.messages, 1)
	require.Len(t, decodedPub.messages, 1)
	assert.Empty(t, failedPub.messages)

	// Both messages are keyed by device token for partition affinity.
	assert.Equal(t, "truck-7", registrationPub.messages[0].key)
	assert.Equal(t, "truck-7", decodedPub.messages[0].key)

	payload, err := messaging.UnmarshalDecodedEvent(decodedPub.messages[0].value)
	require.NoError(t, err)
	assert.Equal(t, "src-mqtt", payload.SourceID)
	assert.Equal(t, "truck-7", payload.DeviceToken)
	assert.Equal(t, "devices/truck-7", payload.Metadata["mqtt.topic"])
	require.NotNil(t, payload.Request.Measurement)
	assert.Equal(t, "fuel.level", payload.Request.Measurement.Name)
}

func TestEventSource_DecodeFailureGoesOnlyToFailedDecode(t *testing.T) {
	producers, decodedPub, registrationPub, failedPub := testProducers()
	raw := []byte{0x00, 0x01, 0xfe, 0xff}
	dec := &fakeDecoder{err: decoder.NewDecodeError(decoder.ReasonInvalidPayload,
		errors.New("payload carries no device token"))}
	dd := &fakeDedup{}

	src := NewEventSource("src-mqtt", "acme", dec, dd, producers, logging.Default())
	err := src.OnEncodedEventReceived(context.Background(), raw, map[string]string{"mqtt.topic": "devices/unknown"})
	require.NoError(t, err)

	assert.Empty(t, decodedPub.messages)
	assert.Empty(t, registrationPub.messages)
	assert.Zero(t, dd.calls, "a failed decode must never reach the deduplicator")

	require.Len(t, failedPub.messages, 1)
	payload, err := messaging.UnmarshalFailedDecode(failedPub.messages[0].value)
	require.NoError(t, err)
	assert.Equal(t, raw, payload.Payload, "original bytes must be preserved untouched")
	assert.Equal(t, string(decoder.ReasonInvalidPayload), payload.Reason)
	assert.Equal(t, "devices/unknown", payload.Metadata["mqtt.topic"])
}

func TestEventSource_DuplicatesAreDropped(t *testing.T) {
	producers, decodedPub, _, _ := testProducers()
	dec := &fakeDecoder{requests: []*model.DecodedDeviceRequest{
		measurement("truck-7", "msg-1"),
		measurement("truck-7", "msg-2"),
	}}
	dd := &fakeDedup{duplicates: map[string]bool{"msg-1": true}}

	src := NewEventSource("src-mqtt", "acme", dec, dd, producers, logging.Default())
	err := src.OnEncodedEventReceived(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)

	require.Len(t, decodedPub.messages, 1)
	payload, err := messaging.UnmarshalDecodedEvent(decodedPub.messages[0].value)
	require.NoError(t, err)
	assert.Equal(t, "msg-2", payload.Request.AlternateID())
}

func TestEventSource_DedupFailureIsReturned(t *testing.T) {
	producers, decodedPub, _, failedPub := testProducers()
	dec := &fakeDecoder{requests: []*model.DecodedDeviceRequest{measurement("truck-7", "msg-1")}}
	dd := &fakeDedup{err: errors.New("lookup store unavailable")}

	src := NewEventSource("src-mqtt", "acme", dec, dd, producers, logging.Default())
	err := src.OnEncodedEventReceived(context.Background(), []byte(`{}`), nil)
	require.Error(t, err)
	assert.Empty(t, decodedPub.messages)
	assert.Empty(t, failedPub.messages)
}

func TestEventSource_ProduceFailureIsDroppedNotReturned(t *testing.T) {
	producers, decodedPub, _, _ := testProducers()
	decodedPub.sendErr = errors.New("broker unreachable")
	dec := &fakeDecoder{requests: []*model.DecodedDeviceRequest{measurement("truck-7", "")}}

	src := NewEventSource("src-mqtt", "acme", dec, nil, producers, logging.Default())
	err := src.OnEncodedEventReceived(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err, "produce exhaustion is a counted drop, not a processing failure")
	assert.Empty(t, decodedPub.messages)
}

type fakeReceiver struct {
	name      string
	started   bool
	stopped   bool
	startErr  error
	stopOrder *[]string
}

func (f *fakeReceiver) Describe() string { return f.name }

func (f *fakeReceiver) Start(context.Context, EncodedEventHandler) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeReceiver) Stop() error {
	f.stopped = true
	if f.stopOrder != nil {
		*f.stopOrder = append(*f.stopOrder, f.name)
	}
	return nil
}

func TestManager_Lifecycle(t *testing.T) {
	log := logging.Default()
	producersA, _, _, _ := testProducers()
	producersB, _, _, _ := testProducers()

	var stopOrder []string
	recvA := &fakeReceiver{name: "mqtt-a", stopOrder: &stopOrder}
	recvB := &fakeReceiver{name: "mqtt-b", stopOrder: &stopOrder}

	srcA := NewEventSource("src-a", "acme", &fakeDecoder{}, nil, producersA, log)
	srcA.AddReceiver(recvA)
	srcB := NewEventSource("src-b", "acme", &fakeDecoder{}, nil, producersB, log)
	srcB.AddReceiver(recvB)

	m := NewManager("acme", log)
	require.NoError(t, m.Add(srcA))
	require.NoError(t, m.Add(srcB))

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		dup := NewEventSource("src-a", "acme", &fakeDecoder{}, nil, producersA, log)
		assert.Error(t, m.Add(dup))
	})

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, recvA.started)
	assert.True(t, recvB.started)

	require.NoError(t, m.Stop())
	assert.Equal(t, []string{"mqtt-b", "mqtt-a"}, stopOrder, "sources stop in reverse start order")
}

func TestManager_StartRollbackOnFailure(t *testing.T) {
	log := logging.Default()
	producersA, _, _, _ := testProducers()
	producersB, _, _, _ := testProducers()

	recvA := &fakeReceiver{name: "mqtt-a"}
	recvB := &fakeReceiver{name: "mqtt-b", startErr: errors.New("port in use")}

	srcA := NewEventSource("src-a", "acme", &fakeDecoder{}, nil, producersA, log)
	srcA.AddReceiver(recvA)
	srcB := NewEventSource("src-b", "acme", &fakeDecoder{}, nil, producersB, log)
	srcB.AddReceiver(recvB)

	m := NewManager("acme", log)
	require.NoError(t, m.Add(srcA))
	require.NoError(t, m.Add(srcB))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, recvA.stopped, "already-started sources roll back")
}
