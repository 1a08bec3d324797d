package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yabot/core/internal/eventbus/localqueue"
	"github.com/yabot/core/internal/events"
)

// HealthPollInterval is how often a degraded Bus re-checks broker health in
// the background drain loop.
const HealthPollInterval = 5 * time.Second

// Drain backoff bounds applied between republish retries once the broker is
// back up but an individual publish still fails.
const (
	DrainBackoffBase = 500 * time.Millisecond
	DrainBackoffMax  = 10 * time.Second
)

// Logger is the minimal logging dependency this package needs.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Handler processes one decoded event received from a subscription.
type Handler func(ctx context.Context, ev events.Event) error

// Bus is the Event Bus (§4.B): a thin publish/subscribe façade over a
// pluggable Broker, falling back to a persisted local queue whenever the
// broker is unreachable so that publishes never block or fail outright.
// It mirrors the reference EventBus interface's Start/Stop/Publish/
// Subscribe shape, generalized from "one engine, chosen at construction"
// to "one engine, with an always-available local fallback".
type Bus struct {
	broker Broker
	queue  *localqueue.Queue
	logger Logger

	degraded atomic.Bool

	mu          sync.RWMutex
	subscribers map[string]map[string]struct{}
	unsubs      []func() error

	stopDrain chan struct{}
	drainDone chan struct{}
}

// New constructs a Bus over broker, falling back to a local queue bounded
// at localQueueMaxSize and persisted at localQueuePath (empty for
// in-memory only, used in tests).
func New(broker Broker, logger Logger, localQueueMaxSize int, localQueuePath string) *Bus {
	b := &Bus{
		broker:      broker,
		logger:      logger,
		subscribers: make(map[string]map[string]struct{}),
	}
	b.queue = localqueue.New(localQueueMaxSize, localQueuePath, b.onQueueDrop)
	return b
}

func (b *Bus) onQueueDrop(dropped events.Event) {
	if b.logger != nil {
		b.logger.Warn("event bus local queue overflow, dropped oldest event",
			"event_type", dropped.EventType, "event_id", dropped.EventID)
	}
}

// Connect restores any persisted local queue entries, probes the broker,
// and starts the background drain loop. It never returns an error for an
// unreachable broker: the Bus simply starts degraded and Publish falls
// back to the local queue until the broker recovers.
func (b *Bus) Connect(ctx context.Context) error {
	if truncated, err := b.queue.Load(); err != nil {
		return fmt.Errorf("eventbus: load local queue: %w", err)
	} else if truncated && b.logger != nil {
		b.logger.Warn("event bus local queue file had a malformed tail, truncated on load")
	}

	if err := b.broker.Ping(ctx); err != nil {
		b.degraded.Store(true)
		if b.logger != nil {
			b.logger.Warn("event bus starting degraded, broker unreachable", "error", err)
		}
	}

	b.stopDrain = make(chan struct{})
	b.drainDone = make(chan struct{})
	go b.drainLoop()
	return nil
}

// Publish encodes ev and sends it to topic via the broker. If the bus is
// degraded, or the broker publish fails, ev is appended to the local queue
// instead and Publish still returns nil: callers never see broker
// unavailability as an error, matching §4.B's at-least-once delivery
// guarantee under broker outage.
func (b *Bus) Publish(ctx context.Context, topic string, ev events.Event) error {
	raw, err := encode(ev)
	if err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}

	if b.degraded.Load() {
		b.queue.Enqueue(ev)
		return nil
	}

	if err := b.broker.Publish(ctx, topic, raw); err != nil {
		b.degraded.Store(true)
		if b.logger != nil {
			b.logger.Warn("event bus publish failed, falling back to local queue",
				"topic", topic, "error", err)
		}
		b.queue.Enqueue(ev)
		return nil
	}
	return nil
}

// Subscribe registers handler under key for every event published to
// topic, including those republished from the local queue during
// recovery. Subscribe is idempotent per (topic, key): re-registering the
// same key on the same topic is a no-op rather than attaching a second
// broker subscription, so callers can re-run their startup wiring safely.
func (b *Bus) Subscribe(ctx context.Context, topic, key string, handler Handler) error {
	b.mu.Lock()
	keys, ok := b.subscribers[topic]
	if !ok {
		keys = make(map[string]struct{})
		b.subscribers[topic] = keys
	}
	if _, already := keys[key]; already {
		b.mu.Unlock()
		return nil
	}
	keys[key] = struct{}{}
	b.mu.Unlock()

	unsub, err := b.broker.Subscribe(ctx, topic, func(raw []byte) {
		ev, err := decode(raw)
		if err != nil {
			if b.logger != nil {
				b.logger.Error("eventbus: failed to decode inbound message", "topic", topic, "error", err)
			}
			return
		}
		if _, known := events.KnownTypes[ev.EventType]; !known {
			if b.logger != nil {
				b.logger.Warn("eventbus: dropping event of unrecognized type", "topic", topic, "event_type", ev.EventType)
			}
			return
		}
		if err := handler(ctx, ev); err != nil && b.logger != nil {
			b.logger.Error("eventbus: subscriber handler failed", "topic", topic, "event_type", ev.EventType, "error", err)
		}
	})
	if err != nil {
		b.mu.Lock()
		delete(b.subscribers[topic], key)
		b.mu.Unlock()
		return fmt.Errorf("eventbus: subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.unsubs = append(b.unsubs, unsub)
	b.mu.Unlock()
	return nil
}

// Close stops the drain loop, persists the local queue, and releases the
// broker connection.
func (b *Bus) Close() error {
	if b.stopDrain != nil {
		close(b.stopDrain)
		<-b.drainDone
	}

	b.mu.RLock()
	unsubs := append([]func() error(nil), b.unsubs...)
	b.mu.RUnlock()
	for _, u := range unsubs {
		_ = u()
	}

	if err := b.queue.Persist(); err != nil && b.logger != nil {
		b.logger.Error("eventbus: failed to persist local queue on close", "error", err)
	}
	return b.broker.Close()
}

// Degraded reports whether the bus is currently falling back to the local
// queue instead of publishing directly to the broker.
func (b *Bus) Degraded() bool {
	return b.degraded.Load()
}

// QueueDepth reports how many events are currently held in the local
// fallback queue awaiting broker recovery.
func (b *Bus) QueueDepth() int {
	return b.queue.Len()
}

// drainLoop polls broker health every HealthPollInterval. On a down->up
// transition it republishes everything in the local queue, oldest first;
// a failed republish is pushed back to the front of the queue and the loop
// backs off before retrying, rather than losing the event or busy-looping.
func (b *Bus) drainLoop() {
	defer close(b.drainDone)

	ticker := time.NewTicker(HealthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopDrain:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), HealthPollInterval/2)
		err := b.broker.Ping(ctx)
		cancel()

		if err != nil {
			b.degraded.Store(true)
			continue
		}

		wasDegraded := b.degraded.Swap(false)
		if !wasDegraded {
			continue
		}
		if b.logger != nil {
			b.logger.Info("event bus broker reachable again, draining local queue", "depth", b.queue.Len())
		}
		b.drainQueue()
	}
}

func (b *Bus) drainQueue() {
	backoff := DrainBackoffBase
	for {
		select {
		case <-b.stopDrain:
			return
		default:
		}

		ev, ok := b.queue.Dequeue()
		if !ok {
			return
		}

		raw, err := encode(ev)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), HealthPollInterval/2)
			err = b.broker.Publish(ctx, b.topicFor(ev), raw)
			cancel()
		}
		if err != nil {
			b.queue.EnqueueFront(ev)
			b.degraded.Store(true)
			if b.logger != nil {
				b.logger.Warn("event bus drain republish failed, backing off", "error", err, "backoff", backoff)
			}
			time.Sleep(backoff)
			backoff *= 2
			if backoff > DrainBackoffMax {
				backoff = DrainBackoffMax
			}
			return
		}
		backoff = DrainBackoffBase
	}
}

// topicFor derives the publish topic for a queued event. Events are queued
// with their original type as topic, matching how they were first
// published: the core always publishes on the topic named after the
// event's own type (see the service packages), so recovering that from
// the event itself keeps the local queue schema-free.
func (b *Bus) topicFor(ev events.Event) string {
	return string(ev.EventType)
}
