package eventstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/thingflow/thingflow/common/model"
)

// newPersistedEvent builds the persisted form of a create request. The id is
// always newly generated; the event date falls back to the storage server
// time when the request carried none.
func newPersistedEvent(eventType model.EventType, ec model.EventContext, deviceToken string, base model.EventCreateRequest, now time.Time) *model.PersistedEvent {
	eventDate := now
	if base.EventDate != nil {
		eventDate = *base.EventDate
	}
	return &model.PersistedEvent{
		ID:           uuid.New(),
		EventType:    eventType,
		DeviceToken:  deviceToken,
		AlternateID:  base.AlternateID,
		EventDate:    eventDate,
		ReceivedDate: now,
		Metadata:     base.Metadata,
		Context:      ec,
	}
}
