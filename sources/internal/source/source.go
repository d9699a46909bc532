package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/model"
	"github.com/thingflow/thingflow/sources/internal/decoder"
	"github.com/thingflow/thingflow/sources/internal/dedup"
	"github.com/thingflow/thingflow/sources/internal/metrics"
)

// EncodedEventHandler consumes raw payloads from a protocol receiver.
type EncodedEventHandler interface {
	OnEncodedEventReceived(ctx context.Context, payload []byte, metadata map[string]string) error
}

// Receiver is a protocol listener bound to one event source. Start begins
// delivering payloads to the handler and returns once the receiver is
// accepting traffic; Stop blocks until delivery has ceased.
type Receiver interface {
	Describe() string
	Start(ctx context.Context, handler EncodedEventHandler) error
	Stop() error
}

// EventSource decodes, deduplicates, and forwards raw device payloads for
// one tenant. It holds no durable state; its forwards are the sole write
// path into the broker.
type EventSource struct {
	id        string
	tenant    string
	receivers []Receiver
	decoder   decoder.Decoder
	dedup     dedup.Deduplicator
	producers *TenantProducers
	log       *logging.Logger
}

// NewEventSource wires an event source from its startup-time components.
// A nil deduplicator disables duplicate filtering.
func NewEventSource(id, tenant string, d decoder.Decoder, dd dedup.Deduplicator, producers *TenantProducers, log *logging.Logger) *EventSource {
	if dd == nil {
		dd = dedup.None{}
	}
	return &EventSource{
		id:        id,
		tenant:    tenant,
		decoder:   d,
		dedup:     dd,
		producers: producers,
		log:       log.With(logging.Tenant(tenant), logging.Source(id)),
	}
}

// ID returns the event source id.
func (s *EventSource) ID() string { return s.id }

// AddReceiver registers a protocol receiver. Must be called before Start.
func (s *EventSource) AddReceiver(r Receiver) {
	s.receivers = append(s.receivers, r)
}

// Start brings up the source's receivers. Receivers start last so no
// payload arrives before the processing chain is ready.
func (s *EventSource) Start(ctx context.Context) error {
	for _, r := range s.receivers {
		if err := r.Start(ctx, s); err != nil {
			return fmt.Errorf("start receiver %s: %w", r.Describe(), err)
		}
		s.log.InfoContext(ctx, "receiver started", "receiver", r.Describe())
	}
	return nil
}

// Stop shuts down the source's receivers, then its producers. Receivers
// stop first so no payload arrives on a closed producer.
func (s *EventSource) Stop() error {
	var errs []error
	for _, r := range s.receivers {
		if err := r.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop receiver %s: %w", r.Describe(), err))
		}
	}
	if err := s.producers.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OnEncodedEventReceived processes one raw payload synchronously on the
// caller's goroutine: decode, deduplicate, then forward each surviving
// request routed by its variant. Decode failures are routed to the
// failed-decode topic with the original payload bytes and never returned.
// Duplicate-detection failures are returned so the receiver does not
// acknowledge the payload.
func (s *EventSource) OnEncodedEventReceived(ctx context.Context, payload []byte, metadata map[string]string) error {
	requests, err := s.decoder.Decode(ctx, payload, &decoder.MessageMetadata{Source: metadata})
	if err != nil {
		s.routeFailedDecode(ctx, payload, metadata, err)
		return nil
	}

	for _, req := range requests {
		metrics.EventsDecoded.WithLabelValues(s.tenant, s.id).Inc()

		dup, err := s.dedup.IsDuplicate(ctx, req)
		if err != nil {
			metrics.DedupFailures.WithLabelValues(s.tenant, s.id).Inc()
			return fmt.Errorf("duplicate detection for device %q: %w", req.DeviceToken, err)
		}
		if dup {
			metrics.DuplicatesDropped.WithLabelValues(s.tenant, s.id).Inc()
			s.log.InfoContext(ctx, "dropped duplicate request",
				logging.Device(req.DeviceToken),
				logging.EventType(string(req.Type())),
				"alternate_id", req.AlternateID(),
			)
			continue
		}

		s.forward(ctx, req, metadata)
	}
	return nil
}

// forward publishes one decoded request, keyed by device token for
// partition affinity. Registrations go to the device-registration topic,
// everything else to decoded-events.
func (s *EventSource) forward(ctx context.Context, req *model.DecodedDeviceRequest, metadata map[string]string) {
	value, err := messaging.MarshalDecodedEvent(&messaging.DecodedEventPayload{
		SourceID:    s.id,
		DeviceToken: req.DeviceToken,
		Metadata:    metadata,
		Request:     req,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to marshal decoded request",
			logging.Device(req.DeviceToken), logging.Err(err))
		return
	}

	target := s.producers.Decoded
	role := messaging.TopicDecodedEvents
	if req.Registration != nil {
		target = s.producers.Registration
		role = messaging.TopicDeviceRegistrationEvents
	}

	if err := target.Send(ctx, req.DeviceToken, value); err != nil {
		// Retries are exhausted inside the producer; the message is
		// dropped here and the drop is counted.
		metrics.ProduceFailures.WithLabelValues(s.tenant, role).Inc()
		s.log.ErrorContext(ctx, "dropped request after produce failure",
			logging.Device(req.DeviceToken),
			logging.Topic(target.Topic()),
			logging.Err(err),
		)
		return
	}
	metrics.EventsForwarded.WithLabelValues(s.tenant, s.id, role).Inc()
}

// routeFailedDecode publishes the untouched payload bytes and the failure
// cause to the failed-decode topic. There is no retry at this layer.
func (s *EventSource) routeFailedDecode(ctx context.Context, payload []byte, metadata map[string]string, cause error) {
	reason := decoder.ReasonInvalidPayload
	var de *decoder.DecodeError
	if errors.As(cause, &de) {
		reason = de.Reason
	}
	metrics.DecodeFailures.WithLabelValues(s.tenant, s.id, string(reason)).Inc()
	s.log.WarnContext(ctx, "payload failed decoding", "reason", string(reason), logging.Err(cause))

	value, err := messaging.MarshalFailedDecode(&messaging.FailedDecodePayload{
		SourceID: s.id,
		Metadata: metadata,
		Payload:  payload,
		Reason:   string(reason),
		Message:  cause.Error(),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to marshal failed-decode payload", logging.Err(err))
		return
	}
	if err := s.producers.FailedDecode.Send(ctx, s.id, value); err != nil {
		metrics.ProduceFailures.WithLabelValues(s.tenant, messaging.TopicFailedDecodeEvents).Inc()
		s.log.ErrorContext(ctx, "dropped failed-decode payload",
			logging.Topic(s.producers.FailedDecode.Topic()), logging.Err(err))
	}
}
