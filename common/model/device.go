package model

import "github.com/google/uuid"

// Device is a registered device looked up by token during decoding and
// dispatch. AssignmentID is nil for devices that have never been assigned.
type Device struct {
	ID           uuid.UUID  `json:"id"`
	Token        string     `json:"token"`
	DeviceTypeID uuid.UUID  `json:"device_type_id"`
	AssignmentID *uuid.UUID `json:"assignment_id,omitempty"`
}

// DeviceType describes a class of devices sharing a payload format.
type DeviceType struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"token"`
	Name  string    `json:"name"`
}

// AssignmentStatus tracks the lifecycle of a device assignment.
type AssignmentStatus string

const (
	AssignmentStatusActive   AssignmentStatus = "active"
	AssignmentStatusReleased AssignmentStatus = "released"
	AssignmentStatusMissing  AssignmentStatus = "missing"
)

// DeviceAssignment binds a device to the customer/area/asset identifiers
// that become the event context for its events.
type DeviceAssignment struct {
	ID         uuid.UUID        `json:"id"`
	DeviceID   uuid.UUID        `json:"device_id"`
	CustomerID *uuid.UUID       `json:"customer_id,omitempty"`
	AreaID     *uuid.UUID       `json:"area_id,omitempty"`
	AssetID    *uuid.UUID       `json:"asset_id,omitempty"`
	Status     AssignmentStatus `json:"status"`
}
