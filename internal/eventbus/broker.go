package eventbus

import "context"

// Broker is the minimal transport behind a Bus: something that can publish
// a raw encoded event to a topic and report whether it is currently
// reachable. redisbroker.Broker and natsbroker.Broker both satisfy this;
// Bus itself never depends on go-redis or nats.go directly, only on this
// interface, the same seam the reference EventBus interface draws between
// itself and its memory/kafka/kinesis engines.
type Broker interface {
	// Publish delivers raw (an encoded CloudEvents envelope) to topic.
	Publish(ctx context.Context, topic string, raw []byte) error

	// Subscribe registers fn to be invoked with the raw payload of every
	// message published to topic. Returns an unsubscribe func.
	Subscribe(ctx context.Context, topic string, fn func(raw []byte)) (func() error, error)

	// Ping reports whether the broker is currently reachable.
	Ping(ctx context.Context) error

	// Close releases the broker's connection.
	Close() error
}
