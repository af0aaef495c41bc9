package events

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Publisher abstracts the Redis operation used to fan out state changes, so tests can stub it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisPublisher is a Publisher backed by go-redis.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher constructs a Redis-backed publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends message on channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe listens on the state channel of session. Callers close the returned PubSub.
func Subscribe(ctx context.Context, client *redis.Client, session string) *redis.PubSub {
	return client.Subscribe(ctx, Channel(session))
}
