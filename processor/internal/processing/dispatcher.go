// Package processing consumes decoded device events, dispatches them into
// storage through a keyed worker pool, and hands stored events to outbound
// delivery.
package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thingflow/thingflow/common/eventstore"
	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/model"
	"github.com/thingflow/thingflow/common/registry"
	"github.com/thingflow/thingflow/processor/internal/metrics"
)

// StorageDispatchError reports a per-event failure between parsing and
// outbound delivery. It is caught and logged by the store consumer and
// never aborts the batch.
type StorageDispatchError struct {
	DeviceToken string
	EventType   model.EventType
	Err         error
}

func (e *StorageDispatchError) Error() string {
	return fmt.Sprintf("dispatch %s event for device %s: %v", e.EventType, e.DeviceToken, e.Err)
}

func (e *StorageDispatchError) Unwrap() error { return e.Err }

// Publisher is the producer surface used to reroute events from
// unregistered devices.
type Publisher interface {
	Topic() string
	Send(ctx context.Context, key string, value []byte) error
	Close() error
}

// Deliverer hands a stored event to outbound delivery.
type Deliverer interface {
	EnrichAndDeliver(ctx context.Context, event *model.PersistedEvent) error
}

// Dispatcher stores decoded events for one tenant. It validates the
// device's assignment, routes the event to the storage call matching its
// type, and forwards the stored event outbound.
type Dispatcher struct {
	tenant       string
	devices      registry.DeviceRegistry
	store        eventstore.DeviceEventStore
	outbound     Deliverer
	registration Publisher
	log          *logging.Logger

	deviceLookup     prometheus.Observer
	assignmentLookup prometheus.Observer
}

// NewDispatcher wires a dispatcher for one tenant. registration receives
// events whose device has no active assignment.
func NewDispatcher(tenant string, devices registry.DeviceRegistry, store eventstore.DeviceEventStore, outbound Deliverer, registration Publisher, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		tenant:           tenant,
		devices:          devices,
		store:            store,
		outbound:         outbound,
		registration:     registration,
		log:              log.With(logging.Tenant(tenant)),
		deviceLookup:     metrics.DeviceLookupDuration.WithLabelValues(tenant),
		assignmentLookup: metrics.AssignmentLookupDuration.WithLabelValues(tenant),
	}
}

// Dispatch stores one decoded event and forwards it outbound. Events from
// devices without an active assignment are rerouted to the registration
// topic and do not count as failures.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *messaging.DecodedEventPayload) error {
	req := payload.Request
	eventType := req.Type()
	if eventType == "" || eventType == model.EventTypeRegistration {
		d.log.WarnContext(ctx, "dropping event with unexpected type",
			logging.Device(payload.DeviceToken), logging.EventType(string(eventType)))
		return nil
	}

	ec, registered, err := d.validateAssignment(ctx, payload.DeviceToken)
	if err != nil {
		return &StorageDispatchError{DeviceToken: payload.DeviceToken, EventType: eventType, Err: err}
	}
	if !registered {
		return d.rerouteUnregistered(ctx, payload)
	}

	event, err := d.storeEvent(ctx, *ec, payload.DeviceToken, req)
	if err != nil {
		metrics.DispatchFailures.WithLabelValues(d.tenant, string(eventType)).Inc()
		return &StorageDispatchError{DeviceToken: payload.DeviceToken, EventType: eventType, Err: err}
	}

	metrics.ProcessedEvents.WithLabelValues(d.tenant, string(eventType)).Inc()

	if err := d.outbound.EnrichAndDeliver(ctx, event); err != nil {
		return &StorageDispatchError{DeviceToken: payload.DeviceToken, EventType: eventType, Err: err}
	}
	return nil
}

// validateAssignment resolves the device and its active assignment into an
// event context. registered is false when the device is unknown, has no
// assignment, or the assignment is not active.
func (d *Dispatcher) validateAssignment(ctx context.Context, deviceToken string) (ec *model.EventContext, registered bool, err error) {
	timer := prometheus.NewTimer(d.deviceLookup)
	device, err := d.devices.GetDeviceByToken(ctx, deviceToken)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("device lookup: %w", err)
	}
	if device.AssignmentID == nil {
		return nil, false, nil
	}

	timer = prometheus.NewTimer(d.assignmentLookup)
	assignment, err := d.devices.GetAssignment(ctx, *device.AssignmentID)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, registry.ErrAssignmentNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("assignment lookup: %w", err)
	}
	if assignment.Status != model.AssignmentStatusActive {
		return nil, false, nil
	}

	return &model.EventContext{
		DeviceID:     device.ID,
		AssignmentID: assignment.ID,
		CustomerID:   assignment.CustomerID,
		AreaID:       assignment.AreaID,
		AssetID:      assignment.AssetID,
	}, true, nil
}

func (d *Dispatcher) storeEvent(ctx context.Context, ec model.EventContext, deviceToken string, req *model.DecodedDeviceRequest) (*model.PersistedEvent, error) {
	switch {
	case req.Measurement != nil:
		return d.store.AddDeviceMeasurements(ctx, ec, deviceToken, req.Measurement)
	case req.Location != nil:
		return d.store.AddDeviceLocations(ctx, ec, deviceToken, req.Location)
	case req.Alert != nil:
		return d.store.AddDeviceAlerts(ctx, ec, deviceToken, req.Alert)
	case req.CommandInvocation != nil:
		return d.store.AddDeviceCommandInvocations(ctx, ec, deviceToken, req.CommandInvocation)
	case req.CommandResponse != nil:
		return d.store.AddDeviceCommandResponses(ctx, ec, deviceToken, req.CommandResponse)
	case req.StateChange != nil:
		return d.store.AddDeviceStateChanges(ctx, ec, deviceToken, req.StateChange)
	}
	return nil, fmt.Errorf("no storage call for event type %q", req.Type())
}

// rerouteUnregistered forwards an event from a device without an active
// assignment to the registration topic, where registration processing can
// claim it.
func (d *Dispatcher) rerouteUnregistered(ctx context.Context, payload *messaging.DecodedEventPayload) error {
	metrics.UnregisteredDevices.WithLabelValues(d.tenant).Inc()
	d.log.InfoContext(ctx, "rerouting event from unregistered device",
		logging.Device(payload.DeviceToken),
		logging.Topic(d.registration.Topic()),
	)

	value, err := messaging.MarshalDecodedEvent(payload)
	if err != nil {
		return &StorageDispatchError{DeviceToken: payload.DeviceToken, EventType: payload.Request.Type(), Err: err}
	}
	if err := d.registration.Send(ctx, payload.DeviceToken, value); err != nil {
		return &StorageDispatchError{DeviceToken: payload.DeviceToken, EventType: payload.Request.Type(), Err: err}
	}
	return nil
}
