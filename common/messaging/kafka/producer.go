// Package kafka wraps the segmentio/kafka-go client with the producer and
// batch-consumer shapes the pipeline services use. One producer or consumer
// handle exists per tenant engine; handles are never shared across tenants.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// AckPolicy selects the produce acknowledgement semantics for a topic role.
type AckPolicy string

const (
	// AckNone is fire-and-forget: messages are written asynchronously and
	// failures are only logged. Used for high-volume diagnostic streams.
	AckNone AckPolicy = "none"

	// AckLeader waits for the partition leader to acknowledge the write.
	AckLeader AckPolicy = "leader"

	// AckAll waits for all in-sync replicas to acknowledge the write.
	AckAll AckPolicy = "all"
)

// ProduceError indicates a broker write failed after the client exhausted
// its bounded retries. This is the single accepted data-loss boundary in the
// pipeline; callers count it and drop the message.
type ProduceError struct {
	Topic string
	Err   error
}

func (e *ProduceError) Error() string {
	return fmt.Sprintf("produce to %s: %v", e.Topic, e.Err)
}

func (e *ProduceError) Unwrap() error { return e.Err }

// ProducerConfig holds configuration for a topic producer.
type ProducerConfig struct {
	Brokers []string
	Topic   string
	Acks    AckPolicy

	// MaxAttempts bounds the client's internal retries before a write is
	// reported as failed.
	MaxAttempts int

	BatchSize    int
	BatchTimeout time.Duration

	// Dropped counts messages lost on fire-and-forget topics, where write
	// failures surface in the completion callback instead of at Send.
	Dropped prometheus.Counter
}

// DefaultProducerConfig returns acknowledged-produce defaults for a topic.
func DefaultProducerConfig(brokers []string, topic string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		Topic:        topic,
		Acks:         AckLeader,
		MaxAttempts:  5,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Producer publishes messages to one topic, keyed for partition affinity.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a producer for the configured topic. Messages with
// the same key always hash to the same partition.
func NewProducer(cfg ProducerConfig) *Producer {
	var acks kafka.RequiredAcks
	async := false
	switch cfg.Acks {
	case AckNone:
		acks = kafka.RequireNone
		async = true
	case AckAll:
		acks = kafka.RequireAll
	default:
		acks = kafka.RequireOne
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		MaxAttempts:  attempts,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		Async:        async,
	}

	if async {
		// Fire-and-forget writes surface failures here instead of at Send.
		writer.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("async produce failed, messages dropped",
					slog.String("topic", cfg.Topic),
					slog.Int("count", len(messages)),
					slog.String("error", err.Error()),
				)
				if cfg.Dropped != nil {
					cfg.Dropped.Add(float64(len(messages)))
				}
			}
		}
	}

	return &Producer{writer: writer, topic: cfg.Topic}
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string { return p.topic }

// Send publishes one message keyed by key. For acknowledged producers the
// call blocks until the broker acknowledges or retries are exhausted, in
// which case a *ProduceError is returned.
func (p *Producer) Send(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return &ProduceError{Topic: p.topic, Err: err}
	}
	return nil
}

// Close flushes pending writes and releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
