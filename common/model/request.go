package model

import (
	"errors"
	"fmt"
	"time"
)

// EventCreateRequest holds fields common to all event create variants.
// EventDate defaults to the storage server time when nil. AlternateID is an
// optional client-supplied identifier used for duplicate detection.
type EventCreateRequest struct {
	EventDate   *time.Time        `json:"event_date,omitempty"`
	AlternateID string            `json:"alternate_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MeasurementCreateRequest creates a named scalar measurement.
type MeasurementCreateRequest struct {
	EventCreateRequest

	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// LocationCreateRequest creates a device location reading.
type LocationCreateRequest struct {
	EventCreateRequest

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// AlertCreateRequest creates a device alert. Source defaults to
// AlertSourceDevice and Level to AlertLevelInfo when unset.
type AlertCreateRequest struct {
	EventCreateRequest

	Source  AlertSource `json:"source,omitempty"`
	Level   AlertLevel  `json:"level,omitempty"`
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
}

// ApplyDefaults fills in the documented alert defaults.
func (r *AlertCreateRequest) ApplyDefaults() {
	if r.Source == "" {
		r.Source = AlertSourceDevice
	}
	if r.Level == "" {
		r.Level = AlertLevelInfo
	}
}

// CommandInvocationCreateRequest records a command sent to a device.
type CommandInvocationCreateRequest struct {
	EventCreateRequest

	CommandToken string            `json:"command_token"`
	Initiator    string            `json:"initiator,omitempty"`
	Target       string            `json:"target,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`

	// RequiredParameters lists parameter names that must be present in
	// Parameters for the invocation to be accepted.
	RequiredParameters []string `json:"required_parameters,omitempty"`
}

// CommandResponseCreateRequest records a device response to a command.
type CommandResponseCreateRequest struct {
	EventCreateRequest

	OriginatingEventID string `json:"originating_event_id,omitempty"`
	Response           string `json:"response"`
}

// StateChangeCreateRequest records a change in device-reported state.
type StateChangeCreateRequest struct {
	EventCreateRequest

	Attribute     string `json:"attribute"`
	Type          string `json:"type,omitempty"`
	PreviousState string `json:"previous_state,omitempty"`
	NewState      string `json:"new_state"`
}

// RegistrationCreateRequest asks that an unknown device be registered.
type RegistrationCreateRequest struct {
	DeviceTypeToken string            `json:"device_type_token"`
	CustomerToken   string            `json:"customer_token,omitempty"`
	AreaToken       string            `json:"area_token,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

var (
	// ErrNoVariant indicates a decoded request with no event variant set.
	ErrNoVariant = errors.New("decoded request has no event variant")

	// ErrMultipleVariants indicates a decoded request with more than one
	// event variant set.
	ErrMultipleVariants = errors.New("decoded request has multiple event variants")
)

// DecodedDeviceRequest is the tagged union emitted by payload decoders.
// Exactly one variant pointer is non-nil.
type DecodedDeviceRequest struct {
	DeviceToken string `json:"device_token"`

	Measurement       *MeasurementCreateRequest       `json:"measurement,omitempty"`
	Location          *LocationCreateRequest          `json:"location,omitempty"`
	Alert             *AlertCreateRequest             `json:"alert,omitempty"`
	CommandInvocation *CommandInvocationCreateRequest `json:"command_invocation,omitempty"`
	CommandResponse   *CommandResponseCreateRequest   `json:"command_response,omitempty"`
	StateChange       *StateChangeCreateRequest       `json:"state_change,omitempty"`
	Registration      *RegistrationCreateRequest      `json:"registration,omitempty"`
}

// Type returns the event type of the populated variant, or "" when no
// variant is set.
func (r *DecodedDeviceRequest) Type() EventType {
	switch {
	case r.Measurement != nil:
		return EventTypeMeasurement
	case r.Location != nil:
		return EventTypeLocation
	case r.Alert != nil:
		return EventTypeAlert
	case r.CommandInvocation != nil:
		return EventTypeCommandInvocation
	case r.CommandResponse != nil:
		return EventTypeCommandResponse
	case r.StateChange != nil:
		return EventTypeStateChange
	case r.Registration != nil:
		return EventTypeRegistration
	}
	return ""
}

// AlternateID returns the alternate id of the populated variant, or "" when
// the variant carries none. Registrations have no alternate id.
func (r *DecodedDeviceRequest) AlternateID() string {
	switch {
	case r.Measurement != nil:
		return r.Measurement.AlternateID
	case r.Location != nil:
		return r.Location.AlternateID
	case r.Alert != nil:
		return r.Alert.AlternateID
	case r.CommandInvocation != nil:
		return r.CommandInvocation.AlternateID
	case r.CommandResponse != nil:
		return r.CommandResponse.AlternateID
	case r.StateChange != nil:
		return r.StateChange.AlternateID
	}
	return ""
}

// Validate verifies the union invariant and the per-variant required fields.
func (r *DecodedDeviceRequest) Validate() error {
	if r.DeviceToken == "" {
		return errors.New("decoded request missing device token")
	}

	count := 0
	for _, set := range []bool{
		r.Measurement != nil, r.Location != nil, r.Alert != nil,
		r.CommandInvocation != nil, r.CommandResponse != nil,
		r.StateChange != nil, r.Registration != nil,
	} {
		if set {
			count++
		}
	}
	if count == 0 {
		return ErrNoVariant
	}
	if count > 1 {
		return ErrMultipleVariants
	}

	switch {
	case r.Measurement != nil:
		if r.Measurement.Name == "" {
			return errors.New("measurement requires a name")
		}
	case r.Alert != nil:
		if r.Alert.Type == "" {
			return errors.New("alert requires a type")
		}
	case r.CommandInvocation != nil:
		ci := r.CommandInvocation
		if ci.CommandToken == "" {
			return errors.New("command invocation requires a command token")
		}
		for _, name := range ci.RequiredParameters {
			if ci.Parameters[name] == "" {
				return fmt.Errorf("command invocation missing required parameter %q", name)
			}
		}
	case r.CommandResponse != nil:
		if r.CommandResponse.Response == "" {
			return errors.New("command response requires a response")
		}
	case r.StateChange != nil:
		if r.StateChange.Attribute == "" {
			return errors.New("state change requires an attribute")
		}
	case r.Registration != nil:
		if r.Registration.DeviceTypeToken == "" {
			return errors.New("registration requires a device type token")
		}
	}
	return nil
}
