// Package redisbroker implements the Event Bus's Broker interface over
// Redis pub/sub, following the connection/wrap idiom of the Tesseract
// tenant-service redis.Client (redis.NewClient + Ping on construction,
// every method wrapping its error with fmt.Errorf %w).
package redisbroker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings this broker needs, a subset of the
// platform-level RedisConfig (§6).
type Config struct {
	URL            string
	Password       string
	MaxConnections int
}

// Broker is a Redis-backed eventbus.Broker using PUBLISH/SUBSCRIBE.
type Broker struct {
	rdb *redis.Client
}

// Dial connects to Redis per cfg and verifies reachability with a Ping.
func Dial(ctx context.Context, cfg Config) (*Broker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbroker: connect: %w", err)
	}
	return &Broker{rdb: rdb}, nil
}

// Publish publishes raw on the Redis channel named topic.
func (b *Broker) Publish(ctx context.Context, topic string, raw []byte) error {
	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("redisbroker: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers fn against the Redis channel named topic.
func (b *Broker) Subscribe(ctx context.Context, topic string, fn func(raw []byte)) (func() error, error) {
	sub := b.rdb.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redisbroker: subscribe %s: %w", topic, err)
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			fn([]byte(msg.Payload))
		}
	}()

	return func() error {
		if err := sub.Close(); err != nil {
			return fmt.Errorf("redisbroker: unsubscribe %s: %w", topic, err)
		}
		return nil
	}, nil
}

// Ping checks the connection to Redis.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisbroker: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	if err := b.rdb.Close(); err != nil {
		return fmt.Errorf("redisbroker: close: %w", err)
	}
	return nil
}
