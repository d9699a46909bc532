package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// TopicSpec describes a topic to ensure at startup.
type TopicSpec struct {
	Name       string
	Partitions int
	Config     map[string]string
}

// EnsureTopics creates any missing topics. Existing topics are left alone.
// Tenant engines call this once at start with the tenant's topic set.
func EnsureTopics(ctx context.Context, brokers []string, replication int, specs ...TopicSpec) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafka.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	for _, spec := range specs {
		partitions := spec.Partitions
		if partitions <= 0 {
			partitions = 3
		}
		tc := kafka.TopicConfig{
			Topic:             spec.Name,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
			ConfigEntries:     toConfigEntries(spec.Config),
		}
		if err := ctrlConn.CreateTopics(tc); err != nil {
			if topicExists(err) {
				continue
			}
			return fmt.Errorf("create topic %s: %w", spec.Name, err)
		}
	}
	return nil
}

// topicExists reports whether a CreateTopics error means the topic is
// already there, which EnsureTopics treats as success.
func topicExists(err error) bool {
	return errors.Is(err, kafka.TopicAlreadyExists)
}

func toConfigEntries(m map[string]string) []kafka.ConfigEntry {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.ConfigEntry, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}
	return out
}
