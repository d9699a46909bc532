// Package registry provides device registry lookups used by the composite
// decoder (device context resolution) and the processor (assignment
// validation and event context enrichment).
package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/thingflow/thingflow/common/model"
)

var (
	// ErrDeviceNotFound indicates no device exists for the token.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceTypeNotFound indicates no device type exists for the id or token.
	ErrDeviceTypeNotFound = errors.New("device type not found")

	// ErrAssignmentNotFound indicates no assignment exists for the id.
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// DeviceRegistry resolves device identity. Lookups are performed per payload
// and never cached across payloads, so registry updates take effect on the
// next event.
type DeviceRegistry interface {
	// GetDeviceByToken resolves a device by its token.
	GetDeviceByToken(ctx context.Context, token string) (*model.Device, error)

	// GetDeviceType resolves a device type by id.
	GetDeviceType(ctx context.Context, id uuid.UUID) (*model.DeviceType, error)

	// GetAssignment resolves a device assignment by id.
	GetAssignment(ctx context.Context, id uuid.UUID) (*model.DeviceAssignment, error)
}
