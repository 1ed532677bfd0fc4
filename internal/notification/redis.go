package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel external indexers subscribe to.
const EventsChannel = "coffre:events"

// RedisNotifier publishes events to a Redis channel for external indexers,
// falling back to the logger when publishing fails. Delivery is best effort
// and never fails the originating operation.
type RedisNotifier struct {
	cache  *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier constructs a Redis-publishing notifier.
func NewRedisNotifier(cache *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{cache: cache, logger: logger}
}

// Send publishes the message as JSON on the events channel.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := n.cache.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		if n.logger != nil {
			n.logger.Warn("publish event", "kind", message.Kind, "error", err)
		}
		return err
	}
	return nil
}
