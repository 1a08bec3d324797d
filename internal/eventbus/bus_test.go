package eventbus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
)

// fakeBroker is an in-memory Broker whose reachability and publish
// behavior can be toggled from tests, standing in for redisbroker/
// natsbroker in unit tests that must not dial a real server.
type fakeBroker struct {
	mu       sync.Mutex
	up       bool
	fail     bool
	handlers map[string][]func(raw []byte)
	received []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{up: true, handlers: make(map[string][]func(raw []byte))}
}

func (f *fakeBroker) Publish(_ context.Context, topic string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up || f.fail {
		return fmt.Errorf("fakeBroker: unreachable")
	}
	f.received = append(f.received, topic)
	for _, h := range f.handlers[topic] {
		h(raw)
	}
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, topic string, fn func(raw []byte)) (func() error, error) {
	f.mu.Lock()
	f.handlers[topic] = append(f.handlers[topic], fn)
	f.mu.Unlock()
	return func() error { return nil }, nil
}

func (f *fakeBroker) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up {
		return fmt.Errorf("fakeBroker: down")
	}
	return nil
}

func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) setUp(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = up
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestBus_PublishDeliversToSubscriberWhenBrokerUp(t *testing.T) {
	broker := newFakeBroker()
	bus := New(broker, nopLogger{}, 10, "")
	require.NoError(t, bus.Connect(context.Background()))
	defer bus.Close()

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(context.Background(), "user_registered", "test-subscriber", func(_ context.Context, ev events.Event) error {
		received <- ev
		return nil
	}))

	ev := events.New(nil, events.TypeUserRegistered, "u1", map[string]any{"k": "v"})
	require.NoError(t, bus.Publish(context.Background(), "user_registered", ev))

	select {
	case got := <-received:
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	assert.False(t, bus.Degraded())
}

func TestBus_SubscribeIsIdempotentPerTopicAndKey(t *testing.T) {
	broker := newFakeBroker()
	bus := New(broker, nopLogger{}, 10, "")
	require.NoError(t, bus.Connect(context.Background()))
	defer bus.Close()

	handler := func(_ context.Context, _ events.Event) error { return nil }
	require.NoError(t, bus.Subscribe(context.Background(), "user_registered", "same-key", handler))
	require.NoError(t, bus.Subscribe(context.Background(), "user_registered", "same-key", handler))

	broker.mu.Lock()
	attached := len(broker.handlers["user_registered"])
	broker.mu.Unlock()
	assert.Equal(t, 1, attached)
}

func TestBus_PublishFallsBackToLocalQueueWhenBrokerDown(t *testing.T) {
	broker := newFakeBroker()
	broker.setUp(false)
	bus := New(broker, nopLogger{}, 10, "")
	require.NoError(t, bus.Connect(context.Background()))
	defer bus.Close()

	assert.True(t, bus.Degraded())

	ev := events.New(nil, events.TypeUserRegistered, "u2", nil)
	require.NoError(t, bus.Publish(context.Background(), "user_registered", ev))

	assert.Equal(t, 1, bus.QueueDepth())
}
