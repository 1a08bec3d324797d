package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
)

func mkEvent(t time.Time, label string) events.Event {
	return events.Event{
		EventID:   label,
		EventType: events.TypeUserInteraction,
		Timestamp: t,
		Payload:   map[string]any{"label": label},
	}
}

// out-of-order buffer scenario (spec.md §8 scenario 5): events with
// timestamps (t=10,A) (t=5,B) (t=10,C) inserted in that order must drain
// as B, A, C.
func TestBuffer_DrainsInTimestampOrderWithInsertionTiebreak(t *testing.T) {
	buf := New(10, nil)
	base := time.Unix(0, 0)

	require.NoError(t, buf.Add("99", mkEvent(base.Add(10*time.Second), "A")))
	require.NoError(t, buf.Add("99", mkEvent(base.Add(5*time.Second), "B")))
	require.NoError(t, buf.Add("99", mkEvent(base.Add(10*time.Second), "C")))

	var order []string
	processed, failed := buf.Drain(context.Background(), "99", func(_ context.Context, ev events.Event) error {
		order = append(order, ev.EventID)
		return nil
	}, 10)

	assert.Equal(t, 3, processed)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"B", "A", "C"}, order)
}

func TestBuffer_AtCapacityDropsOldestNotNewest(t *testing.T) {
	buf := New(3, nil)
	base := time.Unix(0, 0)

	require.NoError(t, buf.Add("1", mkEvent(base.Add(1*time.Second), "oldest")))
	require.NoError(t, buf.Add("1", mkEvent(base.Add(2*time.Second), "mid")))
	require.NoError(t, buf.Add("1", mkEvent(base.Add(3*time.Second), "newer")))

	err := buf.Add("1", mkEvent(base.Add(4*time.Second), "newest"))
	require.Error(t, err)

	var order []string
	buf.Drain(context.Background(), "1", func(_ context.Context, ev events.Event) error {
		order = append(order, ev.EventID)
		return nil
	}, 10)

	assert.Equal(t, []string{"mid", "newer", "newest"}, order)
}

func TestBuffer_HandlerFailureDropsEventAndContinues(t *testing.T) {
	buf := New(10, nil)
	base := time.Unix(0, 0)
	require.NoError(t, buf.Add("u", mkEvent(base, "first")))
	require.NoError(t, buf.Add("u", mkEvent(base.Add(time.Second), "second")))

	var handled []string
	processed, failed := buf.Drain(context.Background(), "u", func(_ context.Context, ev events.Event) error {
		if ev.EventID == "first" {
			return assert.AnError
		}
		handled = append(handled, ev.EventID)
		return nil
	}, 10)

	assert.Equal(t, 1, processed)
	require.Len(t, failed, 1)
	assert.Equal(t, "first", failed[0].EventID)
	assert.Equal(t, []string{"second"}, handled)
}

func TestBuffer_StatusAndHasEvents(t *testing.T) {
	buf := New(10, nil)
	assert.False(t, buf.HasEvents("x"))
	require.NoError(t, buf.Add("x", mkEvent(time.Now(), "a")))
	assert.True(t, buf.HasEvents("x"))
	assert.Equal(t, map[string]int{"x": 1}, buf.Status())

	ts, ok := buf.PeekNextTimestamp("x")
	require.True(t, ok)
	assert.False(t, ts.IsZero())
}
