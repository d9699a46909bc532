package processing

import (
	"context"
	"errors"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/messaging"
	"github.com/thingflow/thingflow/processor/internal/metrics"
	"github.com/thingflow/thingflow/processor/internal/pool"
)

// Fetcher is the batch-consumer surface the store consumer reads from.
type Fetcher interface {
	FetchBatch(ctx context.Context) ([]kafkago.Message, error)
	Commit(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// StoreConsumer drains one tenant's decoded-events topic into storage. Each
// batch is parsed, dispatched through the keyed worker pool, and joined
// before its offsets are committed, so a crash mid-batch reprocesses the
// whole batch instead of silently losing submitted work.
type StoreConsumer struct {
	tenant     string
	consumer   Fetcher
	workers    *pool.KeyedPool
	dispatcher *Dispatcher
	log        *logging.Logger
}

// NewStoreConsumer wires a store consumer for one tenant. The worker pool
// is owned exclusively by this consumer.
func NewStoreConsumer(tenant string, consumer Fetcher, workers *pool.KeyedPool, dispatcher *Dispatcher, log *logging.Logger) *StoreConsumer {
	return &StoreConsumer{
		tenant:     tenant,
		consumer:   consumer,
		workers:    workers,
		dispatcher: dispatcher,
		log:        log.With(logging.Tenant(tenant)),
	}
}

// Run consumes batches until ctx is cancelled, then drains the worker pool
// before returning.
func (c *StoreConsumer) Run(ctx context.Context) error {
	defer c.workers.Stop()

	for {
		batch, err := c.consumer.FetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		c.processBatch(ctx, batch)

		if err := c.consumer.Commit(ctx, batch...); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// The batch was fully processed; a failed commit means it
			// will be redelivered, which storage tolerates.
			c.log.ErrorContext(ctx, "offset commit failed", logging.Err(err))
		}
	}
}

// processBatch parses and dispatches one batch, blocking until every
// submitted request has been processed. Wire-corrupt messages are logged
// and skipped; per-event dispatch failures are logged and never abort the
// batch.
func (c *StoreConsumer) processBatch(ctx context.Context, batch []kafkago.Message) {
	metrics.BatchSize.WithLabelValues(c.tenant).Set(float64(len(batch)))

	var wg sync.WaitGroup
	for _, msg := range batch {
		payload, err := messaging.UnmarshalDecodedEvent(msg.Value)
		if err != nil {
			// Not retryable: the payload was written by our own producer,
			// so a parse failure here means corruption.
			metrics.SkippedMessages.WithLabelValues(c.tenant).Inc()
			c.log.ErrorContext(ctx, "skipping corrupt message",
				logging.Topic(msg.Topic),
				logging.Partition(msg.Partition),
				logging.Offset(msg.Offset),
				logging.Err(err),
			)
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := c.dispatcher.Dispatch(ctx, payload); err != nil {
				c.log.ErrorContext(ctx, "event dispatch failed",
					logging.Device(payload.DeviceToken),
					logging.EventType(string(payload.Request.Type())),
					logging.Err(err),
				)
			}
		}
		if err := c.workers.Submit(ctx, payload.DeviceToken, task); err != nil {
			wg.Done()
			c.log.ErrorContext(ctx, "worker submission failed",
				logging.Device(payload.DeviceToken), logging.Err(err))
		}
	}
	wg.Wait()
}
