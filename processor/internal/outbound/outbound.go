// Package outbound publishes enriched persisted events to the tenant's
// outbound topics for downstream connectors.
package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/messaging/kafka"
	"github.com/thingflow/thingflow/common/model"
	"github.com/thingflow/thingflow/processor/internal/metrics"
)

// Publisher is the topic-producer surface outbound delivery writes to.
type Publisher interface {
	Topic() string
	Send(ctx context.Context, key string, value []byte) error
	Close() error
}

// Producers owns the outbound producer handles for one tenant engine.
type Producers struct {
	tenant   string
	events   Publisher
	commands Publisher
	log      *logging.Logger

	now func() time.Time
}

// NewProducers builds the outbound producer set for a tenant. Both streams
// are acknowledged; outbound delivery feeds downstream connectors and its
// failures are surfaced to the store consumer.
func NewProducers(brokers []string, naming messaging.TopicNaming, tenant string, log *logging.Logger) *Producers {
	return &Producers{
		tenant:   tenant,
		events:   kafka.NewProducer(kafka.DefaultProducerConfig(brokers, naming.OutboundEventsTopic(tenant))),
		commands: kafka.NewProducer(kafka.DefaultProducerConfig(brokers, naming.OutboundCommandInvocationsTopic(tenant))),
		log:      log.With(logging.Tenant(tenant)),
		now:      time.Now,
	}
}

// Topics returns the topic names this producer set writes to, for topic
// provisioning at startup.
func (p *Producers) Topics() []string {
	return []string{p.events.Topic(), p.commands.Topic()}
}

// EnrichAndDeliver wraps a freshly persisted event with its context into an
// enriched payload and publishes it to the outbound-events topic, keyed by
// device token. Command invocations additionally fan out to the
// outbound-command-invocations topic for command-tracking consumers.
//
// Any failure is returned to the caller, which treats it as a per-event
// failure under the store consumer's continue-on-error policy.
func (p *Producers) EnrichAndDeliver(ctx context.Context, event *model.PersistedEvent) error {
	value, err := messaging.MarshalEnrichedEvent(&messaging.EnrichedEventPayload{
		DeviceToken: event.DeviceToken,
		Event:       event,
		EnrichedAt:  p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enrich event %s: %w", event.ID, err)
	}

	if err := p.send(ctx, p.events, messaging.TopicOutboundEvents, event, value); err != nil {
		return err
	}

	if event.EventType == model.EventTypeCommandInvocation {
		if err := p.send(ctx, p.commands, messaging.TopicOutboundCommandInvocations, event, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Producers) send(ctx context.Context, target Publisher, role string, event *model.PersistedEvent, value []byte) error {
	if err := target.Send(ctx, event.DeviceToken, value); err != nil {
		metrics.OutboundFailures.WithLabelValues(p.tenant, role).Inc()
		return fmt.Errorf("deliver event %s outbound: %w", event.ID, err)
	}
	metrics.OutboundDelivered.WithLabelValues(p.tenant, role).Inc()
	return nil
}

// Close releases the producer handles.
func (p *Producers) Close() error {
	errEvents := p.events.Close()
	errCommands := p.commands.Close()
	if errEvents != nil {
		return errEvents
	}
	return errCommands
}
