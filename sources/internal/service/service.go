// Package service assembles per-tenant event source engines from the wiring
// document and drives their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/thingflow/thingflow/common/eventstore"
	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/messaging/kafka"
	"github.com/thingflow/thingflow/common/registry"
	"github.com/thingflow/thingflow/sources/internal/config"
	"github.com/thingflow/thingflow/sources/internal/decoder"
	"github.com/thingflow/thingflow/sources/internal/dedup"
	"github.com/thingflow/thingflow/sources/internal/metrics"
	"github.com/thingflow/thingflow/sources/internal/receiver/mqtt"
	"github.com/thingflow/thingflow/sources/internal/source"
)

// StoreFactory builds the tenant-scoped alternate-id lookup backing the
// alternate-id dedup policy. It is invoked only for sources whose wiring
// selects that policy, so a topology with no deduplicating source starts
// without touching the store backend at all.
type StoreFactory func(tenant string) (eventstore.AlternateIDLookup, error)

// OpenSearchStores is the production store factory.
func OpenSearchStores(cfg *config.Config) StoreFactory {
	return func(tenant string) (eventstore.AlternateIDLookup, error) {
		return eventstore.NewOpenSearchStore(eventstore.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
		}, tenant)
	}
}

// Service owns the event source managers of all configured tenants.
// Tenancy is the isolation unit: each tenant gets its own producers,
// decoders, and deduplicator; nothing is shared across tenants.
type Service struct {
	cfg      *config.Config
	naming   messaging.TopicNaming
	stores   StoreFactory
	managers []*source.Manager
	topics   []string
	log      *logging.Logger
}

// New builds the tenant engines described by the wiring document. cache may
// be nil when the dedup cache is disabled.
func New(cfg *config.Config, wiring *config.Wiring, devices registry.DeviceRegistry, stores StoreFactory, cache *redis.Client, log *logging.Logger) (*Service, error) {
	naming := messaging.TopicNaming{Product: cfg.Kafka.Product, Instance: cfg.Kafka.Instance}
	s := &Service{cfg: cfg, naming: naming, stores: stores, log: log}

	for _, tenant := range wiring.Tenants {
		manager := source.NewManager(tenant.Token, log)

		for _, sw := range tenant.Sources {
			src, producers, err := s.buildSource(tenant.Token, sw, devices, cache, log)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: %w", tenant.Token, err)
			}
			if err := manager.Add(src); err != nil {
				return nil, fmt.Errorf("tenant %q: %w", tenant.Token, err)
			}
			s.topics = append(s.topics, producers.Topics()...)
		}

		s.managers = append(s.managers, manager)
	}
	return s, nil
}

func (s *Service) buildSource(tenant string, sw config.SourceWiring, devices registry.DeviceRegistry, cache *redis.Client, log *logging.Logger) (*source.EventSource, *source.TenantProducers, error) {
	var dd dedup.Deduplicator
	switch sw.Dedup.Policy {
	case config.PolicyAlternateID:
		store, err := s.stores(tenant)
		if err != nil {
			return nil, nil, fmt.Errorf("source %q: event store: %w", sw.ID, err)
		}
		dd = dedup.NewAlternateID(store, cache, tenant)
	case config.PolicyPredicate:
		fn, ok := dedup.LookupPredicate(sw.Dedup.Predicate)
		if !ok {
			return nil, nil, fmt.Errorf("source %q: no predicate registered under %q", sw.ID, sw.Dedup.Predicate)
		}
		dd = dedup.NewPredicate(fn, 0)
	default:
		dd = dedup.None{}
	}

	var choices []decoder.Choice
	for _, dw := range sw.Decoders {
		// json-batch is the only wire format for now.
		d := decoder.JSONBatchDecoder{}
		if dw.DeviceType != "" {
			choices = append(choices, decoder.NewDeviceTypeChoice(dw.DeviceType, d))
		} else {
			choices = append(choices, decoder.NewPredicateChoice("default",
				func(*decoder.MessageMetadata) bool { return true }, d))
		}
	}

	composite := decoder.NewComposite(decoder.JSONMetadataExtractor{}, devices, choices).
		WithLookupTimer(metrics.DeviceLookupDuration.WithLabelValues(tenant))

	producers := source.NewTenantProducers(s.cfg.Kafka.Brokers, s.naming, tenant)
	src := source.NewEventSource(sw.ID, tenant, composite, dd, producers, log)

	for _, rw := range sw.Receivers {
		src.AddReceiver(mqtt.New(mqtt.Config{
			BrokerURL: rw.BrokerURL,
			ClientID:  rw.ClientID,
			Topic:     rw.Topic,
			QoS:       rw.QoS,
			Username:  rw.Username,
			Password:  rw.Password,
		}, log))
	}
	return src, producers, nil
}

// Start provisions the tenant topics, then starts every tenant engine.
// Receivers come up last inside each source so no payload arrives before
// its processing chain is ready.
func (s *Service) Start(ctx context.Context) error {
	specs := make([]kafka.TopicSpec, 0, len(s.topics))
	for _, topic := range s.topics {
		specs = append(specs, kafka.TopicSpec{Name: topic, Partitions: 8})
	}
	if err := kafka.EnsureTopics(ctx, s.cfg.Kafka.Brokers, 1, specs...); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	for i, m := range s.managers {
		if err := m.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := s.managers[j].Stop(); stopErr != nil {
					s.log.ErrorContext(ctx, "failed to stop tenant engine during rollback", logging.Err(stopErr))
				}
			}
			return err
		}
	}
	return nil
}

// Stop shuts down all tenant engines in reverse start order.
func (s *Service) Stop() error {
	var errs []error
	for i := len(s.managers) - 1; i >= 0; i-- {
		if err := s.managers[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
