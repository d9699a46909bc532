package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestTopicExists(t *testing.T) {
	assert.True(t, topicExists(kafka.TopicAlreadyExists))
	assert.True(t, topicExists(fmt.Errorf("create: %w", kafka.TopicAlreadyExists)))

	assert.False(t, topicExists(kafka.InvalidTopic))
	assert.False(t, topicExists(errors.New("topic already exists")))
	assert.False(t, topicExists(nil))
}
