package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisQueueSink appends messages to one redis list per topic.
type RedisQueueSink struct {
	client listPusher
	prefix string
}

// NewRedisQueueSink returns a sink writing to "<prefix>:<topic>" lists.
func NewRedisQueueSink(client listPusher, prefix string) *RedisQueueSink {
	if prefix == "" {
		prefix = "applets:events"
	}
	return &RedisQueueSink{client: client, prefix: prefix}
}

// Name implements Sink.
func (s *RedisQueueSink) Name() string { return "queue" }

// Key returns the list a topic is pushed to.
func (s *RedisQueueSink) Key(topic string) string {
	return fmt.Sprintf("%s:%s", s.prefix, topic)
}

// Deliver implements Sink.
func (s *RedisQueueSink) Deliver(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.Key(msg.Topic), raw).Err()
}
