package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/model"
)

type fakePublisher struct {
	topic    string
	keys     []string
	messages [][]byte
	sendErr  error
}

func (f *fakePublisher) Topic() string { return f.topic }

func (f *fakePublisher) Send(_ context.Context, key string, value []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, value)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testOutbound() (*Producers, *fakePublisher, *fakePublisher) {
	events := &fakePublisher{topic: "thingflow.prod1.tenant.acme.outbound-events"}
	commands := &fakePublisher{topic: "thingflow.prod1.tenant.acme.outbound-command-invocations"}
	p := &Producers{
		tenant:   "acme",
		events:   events,
		commands: commands,
		log:      logging.Default(),
		now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return p, events, commands
}

func persistedEvent(eventType model.EventType) *model.PersistedEvent {
	return &model.PersistedEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		DeviceToken: "truck-7",
		Context:     model.EventContext{DeviceID: uuid.New(), AssignmentID: uuid.New()},
	}
}

func TestEnrichAndDeliver_Measurement(t *testing.T) {
	p, events, commands := testOutbound()
	event := persistedEvent(model.EventTypeMeasurement)

	require.NoError(t, p.EnrichAndDeliver(context.Background(), event))

	require.Len(t, events.messages, 1)
	assert.Empty(t, commands.messages, "only command invocations fan out twice")
	assert.Equal(t, "truck-7", events.keys[0])

	payload, err := messaging.UnmarshalEnrichedEvent(events.messages[0])
	require.NoError(t, err)
	assert.Equal(t, event.ID, payload.Event.ID)
	assert.Equal(t, "truck-7", payload.DeviceToken)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), payload.EnrichedAt)
	assert.Equal(t, event.Context.AssignmentID, payload.Event.Context.AssignmentID)
}

func TestEnrichAndDeliver_CommandInvocationFansOut(t *testing.T) {
	p, events, commands := testOutbound()
	event := persistedEvent(model.EventTypeCommandInvocation)

	require.NoError(t, p.EnrichAndDeliver(context.Background(), event))

	require.Len(t, events.messages, 1)
	require.Len(t, commands.messages, 1)
	assert.Equal(t, events.messages[0], commands.messages[0], "both topics carry the same enriched payload")
	assert.Equal(t, "truck-7", commands.keys[0])
}

func TestEnrichAndDeliver_ProduceFailureSurfaces(t *testing.T) {
	p, events, _ := testOutbound()
	events.sendErr = errors.New("broker unreachable")

	err := p.EnrichAndDeliver(context.Background(), persistedEvent(model.EventTypeMeasurement))
	require.Error(t, err)
}

func TestEnrichAndDeliver_CommandFanOutFailureSurfaces(t *testing.T) {
	p, events, commands := testOutbound()
	commands.sendErr = errors.New("broker unreachable")

	err := p.EnrichAndDeliver(context.Background(), persistedEvent(model.EventTypeCommandInvocation))
	require.Error(t, err)
	assert.Len(t, events.messages, 1, "the primary delivery already happened")
}
