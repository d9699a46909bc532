// Package model defines the canonical device event model shared by the
// sources and processor services: event create requests produced by payload
// decoders, decoded device requests routed through the broker, and persisted
// events returned from the event store.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the variant of a device event.
type EventType string

const (
	EventTypeMeasurement       EventType = "measurement"
	EventTypeLocation          EventType = "location"
	EventTypeAlert             EventType = "alert"
	EventTypeCommandInvocation EventType = "command-invocation"
	EventTypeCommandResponse   EventType = "command-response"
	EventTypeStateChange       EventType = "state-change"
	EventTypeRegistration      EventType = "registration"
)

// AlertSource indicates where an alert originated.
type AlertSource string

const (
	AlertSourceDevice AlertSource = "device"
	AlertSourceSystem AlertSource = "system"
)

// AlertLevel indicates alert severity.
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelError    AlertLevel = "error"
	AlertLevelCritical AlertLevel = "critical"
)

// EventContext carries the resolved identifiers attached to an event at
// persistence time. It is set exactly once per event and never mutated.
type EventContext struct {
	DeviceID     uuid.UUID  `json:"device_id"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	CustomerID   *uuid.UUID `json:"customer_id,omitempty"`
	AreaID       *uuid.UUID `json:"area_id,omitempty"`
	AssetID      *uuid.UUID `json:"asset_id,omitempty"`
}

// PersistedEvent is a device event after storage. The id is assigned by the
// event store on every write, so reprocessing a batch produces new ids rather
// than conflicting ones.
type PersistedEvent struct {
	ID           uuid.UUID         `json:"id"`
	EventType    EventType         `json:"event_type"`
	DeviceToken  string            `json:"device_token"`
	AlternateID  string            `json:"alternate_id,omitempty"`
	EventDate    time.Time         `json:"event_date"`
	ReceivedDate time.Time         `json:"received_date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Context      EventContext      `json:"context"`

	// Exactly one of the following is populated, matching EventType.
	Measurement       *MeasurementCreateRequest       `json:"measurement,omitempty"`
	Location          *LocationCreateRequest          `json:"location,omitempty"`
	Alert             *AlertCreateRequest             `json:"alert,omitempty"`
	CommandInvocation *CommandInvocationCreateRequest `json:"command_invocation,omitempty"`
	CommandResponse   *CommandResponseCreateRequest   `json:"command_response,omitempty"`
	StateChange       *StateChangeCreateRequest       `json:"state_change,omitempty"`
}
