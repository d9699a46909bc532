package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultMinBytes = 10_000     // 10KB
	defaultMaxBytes = 10_000_000 // 10MB
)

// ConsumerConfig holds configuration for a batch consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// MaxBatch bounds how many messages one FetchBatch call returns.
	MaxBatch int

	// BatchWindow bounds how long FetchBatch keeps accumulating after the
	// first message arrives.
	BatchWindow time.Duration

	MinBytes int
	MaxBytes int
}

// DefaultConsumerConfig returns sensible batch-consumer defaults.
func DefaultConsumerConfig(brokers []string, topic, groupID string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MaxBatch:    100,
		BatchWindow: 100 * time.Millisecond,
		MinBytes:    defaultMinBytes,
		MaxBytes:    defaultMaxBytes,
	}
}

// BatchConsumer reads batches of messages from one topic for one consumer
// group. Offsets are committed explicitly with Commit, never automatically,
// so callers control the commit-after-join policy.
type BatchConsumer struct {
	reader      *kafka.Reader
	maxBatch    int
	batchWindow time.Duration
}

// NewBatchConsumer creates a consumer-group reader for the topic.
func NewBatchConsumer(cfg ConsumerConfig) *BatchConsumer {
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 100
	}
	window := cfg.BatchWindow
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = defaultMinBytes
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        minBytes,
		MaxBytes:        maxBytes,
		MaxWait:         50 * time.Millisecond,
		QueueCapacity:   2048,
		ReadLagInterval: -1,
	})

	return &BatchConsumer{
		reader:      reader,
		maxBatch:    maxBatch,
		batchWindow: window,
	}
}

// FetchBatch blocks until at least one message is available, then keeps
// accumulating until MaxBatch messages are buffered or BatchWindow elapses.
// Returned messages are not committed; pass them to Commit after the batch
// has been fully processed.
func (c *BatchConsumer) FetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}

	batch := make([]kafka.Message, 0, c.maxBatch)
	batch = append(batch, first)

	windowCtx, cancel := context.WithTimeout(ctx, c.batchWindow)
	defer cancel()

	for len(batch) < c.maxBatch {
		msg, err := c.reader.FetchMessage(windowCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				break
			}
			// Batch window closed with a real error; hand back what we
			// have and let the caller see the error on the next fetch.
			break
		}
		batch = append(batch, msg)
	}

	return batch, nil
}

// Commit marks the given messages as processed for the consumer group.
func (c *BatchConsumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

// Close stops the reader and leaves the consumer group.
func (c *BatchConsumer) Close() error {
	return c.reader.Close()
}
