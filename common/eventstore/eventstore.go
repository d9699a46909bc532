// Package eventstore defines the device event storage API the store
// consumer dispatches into, and its OpenSearch implementation. The store
// assigns a fresh id and received-date on every write, which keeps
// at-least-once redelivery safe: a reprocessed batch writes new documents
// rather than clashing with previous ones, and duplicate suppression happens
// upstream via alternate ids.
package eventstore

import (
	"context"

	"github.com/thingflow/thingflow/common/model"
)

// DeviceEventStore persists device events. One instance per tenant engine;
// implementations are tenant-scoped and never shared across tenants.
type DeviceEventStore interface {
	AddDeviceMeasurements(ctx context.Context, ec model.EventContext, deviceToken string, req *model.MeasurementCreateRequest) (*model.PersistedEvent, error)
	AddDeviceLocations(ctx context.Context, ec model.EventContext, deviceToken string, req *model.LocationCreateRequest) (*model.PersistedEvent, error)
	AddDeviceAlerts(ctx context.Context, ec model.EventContext, deviceToken string, req *model.AlertCreateRequest) (*model.PersistedEvent, error)
	AddDeviceCommandInvocations(ctx context.Context, ec model.EventContext, deviceToken string, req *model.CommandInvocationCreateRequest) (*model.PersistedEvent, error)
	AddDeviceCommandResponses(ctx context.Context, ec model.EventContext, deviceToken string, req *model.CommandResponseCreateRequest) (*model.PersistedEvent, error)
	AddDeviceStateChanges(ctx context.Context, ec model.EventContext, deviceToken string, req *model.StateChangeCreateRequest) (*model.PersistedEvent, error)

	// GetDeviceEventByAlternateID returns the previously stored event with
	// the given alternate id, or (nil, nil) when none exists.
	GetDeviceEventByAlternateID(ctx context.Context, alternateID string) (*model.PersistedEvent, error)
}

// AlternateIDLookup is the narrow slice of the store the deduplicator needs.
type AlternateIDLookup interface {
	GetDeviceEventByAlternateID(ctx context.Context, alternateID string) (*model.PersistedEvent, error)
}
