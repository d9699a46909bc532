// Package service assembles per-tenant store consumers and drives their
// lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thingflow/thingflow/common/eventstore"
	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/common/messaging/kafka"
	"github.com/thingflow/thingflow/common/registry"
	"github.com/thingflow/thingflow/processor/internal/config"
	"github.com/thingflow/thingflow/processor/internal/outbound"
	"github.com/thingflow/thingflow/processor/internal/pool"
	"github.com/thingflow/thingflow/processor/internal/processing"
)

// tenantEngine bundles everything one tenant's processing pipeline owns.
type tenantEngine struct {
	tenant   string
	consumer *processing.StoreConsumer
	fetcher  processing.Fetcher
	outbound *outbound.Producers
	reroute  processing.Publisher
	topics   []string
}

// Service owns the processing engines of all configured tenants. Each
// tenant gets its own consumer, worker pool, producers, and event store;
// nothing is shared across tenants.
type Service struct {
	cfg     *config.Config
	engines []*tenantEngine
	log     *logging.Logger
}

// New builds a processing engine per configured tenant.
func New(cfg *config.Config, devices registry.DeviceRegistry, log *logging.Logger) (*Service, error) {
	naming := messaging.TopicNaming{Product: cfg.Kafka.Product, Instance: cfg.Kafka.Instance}
	s := &Service{cfg: cfg, log: log}

	for _, tenant := range cfg.Processing.Tenants {
		engine, err := buildEngine(cfg, naming, tenant, devices, log)
		if err != nil {
			return nil, fmt.Errorf("tenant %q: %w", tenant, err)
		}
		s.engines = append(s.engines, engine)
	}
	return s, nil
}

func buildEngine(cfg *config.Config, naming messaging.TopicNaming, tenant string, devices registry.DeviceRegistry, log *logging.Logger) (*tenantEngine, error) {
	store, err := eventstore.NewOpenSearchStore(eventstore.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
		IndexPrefix:   cfg.OpenSearch.IndexPrefix,
	}, tenant)
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}

	out := outbound.NewProducers(cfg.Kafka.Brokers, naming, tenant, log)
	reroute := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.Kafka.Brokers, naming.DeviceRegistrationTopic(tenant)))
	dispatcher := processing.NewDispatcher(tenant, devices, store, out, reroute, log)

	consumerCfg := kafka.DefaultConsumerConfig(
		cfg.Kafka.Brokers,
		naming.DecodedEventsTopic(tenant),
		naming.ConsumerGroup(tenant, "event-processor"),
	)
	consumerCfg.MaxBatch = cfg.Processing.MaxBatch
	consumerCfg.BatchWindow = cfg.Processing.BatchWindow
	fetcher := kafka.NewBatchConsumer(consumerCfg)

	workers := pool.New(cfg.Processing.PoolWidth, cfg.Processing.QueueDepth)
	consumer := processing.NewStoreConsumer(tenant, fetcher, workers, dispatcher, log)

	topics := append(out.Topics(), naming.DecodedEventsTopic(tenant), reroute.Topic())
	return &tenantEngine{
		tenant:   tenant,
		consumer: consumer,
		fetcher:  fetcher,
		outbound: out,
		reroute:  reroute,
		topics:   topics,
	}, nil
}

// Run provisions topics, then consumes every tenant's decoded events until
// ctx is cancelled. On return all in-flight work has been drained and all
// handles released.
func (s *Service) Run(ctx context.Context) error {
	var specs []kafka.TopicSpec
	for _, e := range s.engines {
		for _, topic := range e.topics {
			specs = append(specs, kafka.TopicSpec{Name: topic, Partitions: 8})
		}
	}
	if err := kafka.EnsureTopics(ctx, s.cfg.Kafka.Brokers, 1, specs...); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(s.engines))
	for i, e := range s.engines {
		wg.Add(1)
		go func(i int, e *tenantEngine) {
			defer wg.Done()
			s.log.InfoContext(ctx, "store consumer started", logging.Tenant(e.tenant))
			if err := e.consumer.Run(ctx); err != nil {
				errs[i] = fmt.Errorf("tenant %q: %w", e.tenant, err)
			}
		}(i, e)
	}
	wg.Wait()

	for _, e := range s.engines {
		if err := e.fetcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %q: close consumer: %w", e.tenant, err))
		}
		if err := e.outbound.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %q: close outbound: %w", e.tenant, err))
		}
		if err := e.reroute.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %q: close reroute producer: %w", e.tenant, err))
		}
	}
	return errors.Join(errs...)
}
