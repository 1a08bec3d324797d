// Package natsbroker implements the Event Bus's Broker interface over
// NATS core pub/sub, adapted from the reference NatsEventBus (subject
// subscriptions, connection options, reconnect handling) down to the
// narrower Publish/Subscribe/Ping/Close surface this core's Bus needs.
package natsbroker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config mirrors the reference NatsConfig's connection knobs, trimmed to
// what this core actually uses.
type Config struct {
	URL            string
	ConnectionName string
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// DefaultConfig returns sane defaults, matching the reference
// NewNatsEventBus constructor's defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		ConnectionName: "yabot-core-eventbus",
		MaxReconnects:  10,
		ReconnectWait:  2 * time.Second,
	}
}

// Broker is a NATS-backed eventbus.Broker.
type Broker struct {
	conn *nats.Conn
}

// Dial connects to NATS per cfg.
func Dial(cfg Config) (*Broker, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbroker: connect: %w", err)
	}
	return &Broker{conn: conn}, nil
}

// Publish sends raw on the NATS subject named topic.
func (b *Broker) Publish(_ context.Context, topic string, raw []byte) error {
	if err := b.conn.Publish(topic, raw); err != nil {
		return fmt.Errorf("natsbroker: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers fn against the NATS subject named topic.
func (b *Broker) Subscribe(_ context.Context, topic string, fn func(raw []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("natsbroker: subscribe %s: %w", topic, err)
	}
	return func() error {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("natsbroker: unsubscribe %s: %w", topic, err)
		}
		return nil
	}, nil
}

// Ping reports whether the connection is currently open.
func (b *Broker) Ping(_ context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("natsbroker: connection closed")
	}
	if status := b.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("natsbroker: connection status %s", status)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (b *Broker) Close() error {
	if b.conn == nil {
		return nil
	}
	b.conn.Close()
	return nil
}
