package localqueue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
)

func mkEvent(label string) events.Event {
	return events.Event{EventID: label, EventType: events.TypeUserInteraction, Timestamp: time.Unix(0, 0)}
}

func TestQueue_FIFOOrderAndOverflowDropsOldest(t *testing.T) {
	var dropped []string
	q := New(2, "", func(ev events.Event) { dropped = append(dropped, ev.EventID) })

	q.Enqueue(mkEvent("a"))
	q.Enqueue(mkEvent("b"))
	q.Enqueue(mkEvent("c"))

	assert.Equal(t, []string{"a"}, dropped)
	assert.Equal(t, 2, q.Len())

	ev, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", ev.EventID)

	ev, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "c", ev.EventID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_EnqueueFrontPutsEventAtHead(t *testing.T) {
	q := New(10, "", nil)
	q.Enqueue(mkEvent("second"))
	q.EnqueueFront(mkEvent("first"))

	ev, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "first", ev.EventID)
}

func TestQueue_PersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.jsonl")

	q := New(10, path, nil)
	q.Enqueue(mkEvent("a"))
	q.Enqueue(mkEvent("b"))
	require.NoError(t, q.Persist())

	q2 := New(10, path, nil)
	truncated, err := q2.Load()
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, 2, q2.Len())

	ev, ok := q2.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", ev.EventID)
}

func TestQueue_EnqueuePersistsImmediatelyWithoutAnExplicitPersistCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.jsonl")

	q := New(10, path, nil)
	q.Enqueue(mkEvent("a"))
	q.Enqueue(mkEvent("b"))
	q.Enqueue(mkEvent("c"))

	q2 := New(10, path, nil)
	truncated, err := q2.Load()
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, 3, q2.Len())
}

func TestQueue_LoadMissingFileIsNotAnError(t *testing.T) {
	q := New(10, filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	truncated, err := q.Load()
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, 0, q.Len())
}
