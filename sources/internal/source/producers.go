// Package source implements the inbound event source: it receives raw
// payloads from protocol receivers, decodes and deduplicates them, and
// forwards the surviving requests to tenant-scoped broker topics.
package source

import (
	"context"
	"errors"

	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/messaging/kafka"
	"github.com/thingflow/thingflow/sources/internal/metrics"
)

// Publisher is the topic-producer surface the event source writes to.
type Publisher interface {
	Topic() string
	Send(ctx context.Context, key string, value []byte) error
	Close() error
}

// TenantProducers holds the producer handles for one tenant engine. Topic
// names are computed once at construction and never per message. Handles
// are owned by the tenant engine and never shared across tenants.
type TenantProducers struct {
	Tenant       string
	Decoded      Publisher
	Registration Publisher
	FailedDecode Publisher
}

// NewTenantProducers builds the producer set for a tenant. Decoded-event
// and registration writes are acknowledged by the partition leader; the
// failed-decode diagnostic stream is fire-and-forget.
func NewTenantProducers(brokers []string, naming messaging.TopicNaming, tenant string) *TenantProducers {
	failedCfg := kafka.DefaultProducerConfig(brokers, naming.FailedDecodeTopic(tenant))
	failedCfg.Acks = kafka.AckNone
	failedCfg.Dropped = metrics.ProduceFailures.WithLabelValues(tenant, messaging.TopicFailedDecodeEvents)

	return &TenantProducers{
		Tenant:       tenant,
		Decoded:      kafka.NewProducer(kafka.DefaultProducerConfig(brokers, naming.DecodedEventsTopic(tenant))),
		Registration: kafka.NewProducer(kafka.DefaultProducerConfig(brokers, naming.DeviceRegistrationTopic(tenant))),
		FailedDecode: kafka.NewProducer(failedCfg),
	}
}

// Topics returns the topic names this producer set writes to, for topic
// provisioning at startup.
func (p *TenantProducers) Topics() []string {
	return []string{p.Decoded.Topic(), p.Registration.Topic(), p.FailedDecode.Topic()}
}

// Close releases all producer handles.
func (p *TenantProducers) Close() error {
	return errors.Join(p.Decoded.Close(), p.Registration.Close(), p.FailedDecode.Close())
}
