// Package ordering implements the per-user timestamp-ordered priority
// buffer (§4.C). It is the Go translation of the reference system's
// EventOrderingBuffer (a hand-rolled heapq.Dict[str, List[OrderableEvent]]
// guarded by one process-wide lock): here each user gets a container/heap
// min-heap plus its own mutex, so draining one user never blocks adds for
// another.
package ordering

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
)

// DefaultMaxBufferSize is the §4.C default cap per user.
const DefaultMaxBufferSize = 100

// BufferedEvent wraps an Event with a monotonic insertion sequence used to
// break timestamp ties. A monotonic counter is used instead of a
// wall-clock "inserted_at" (as the Python original does) since wall-clock
// resolution can collide for events added back-to-back; a counter never
// does. See DESIGN.md.
type BufferedEvent struct {
	Event      events.Event
	InsertedAt int64
}

// Handler processes one buffered event in drain order.
type Handler func(ctx context.Context, ev events.Event) error

// userHeap is a container/heap.Interface over a user's pending events,
// ordered by (Event.Timestamp, InsertedAt) ascending.
type userHeap []BufferedEvent

func (h userHeap) Len() int { return len(h) }
func (h userHeap) Less(i, j int) bool {
	ti, tj := h[i].Event.Timestamp, h[j].Event.Timestamp
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return h[i].InsertedAt < h[j].InsertedAt
}
func (h userHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *userHeap) Push(x any)   { *h = append(*h, x.(BufferedEvent)) }
func (h *userHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type userBuffer struct {
	mu   sync.Mutex
	heap userHeap
}

// Buffer is the mapping from user_id to a per-user ordered heap of
// BufferedEvents.
type Buffer struct {
	MaxBufferSize int
	Logger        Logger

	mu       sync.RWMutex
	buffers  map[string]*userBuffer
	sequence atomic.Int64
}

// Logger is the minimal logging dependency this package needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// New creates a Buffer with the given per-user cap (DefaultMaxBufferSize
// if maxSize <= 0).
func New(maxSize int, logger Logger) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &Buffer{
		MaxBufferSize: maxSize,
		Logger:        logger,
		buffers:       make(map[string]*userBuffer),
	}
}

func (b *Buffer) bufferFor(userID string) *userBuffer {
	b.mu.RLock()
	ub, ok := b.buffers[userID]
	b.mu.RUnlock()
	if ok {
		return ub
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ub, ok = b.buffers[userID]; ok {
		return ub
	}
	ub = &userBuffer{}
	heap.Init(&ub.heap)
	b.buffers[userID] = ub
	return ub
}

// Add pushes ev onto userID's heap. If the heap then exceeds
// MaxBufferSize, the oldest entries (by heap order) are dropped and
// ErrBufferOverflow is returned: the event itself was still accepted, the
// error reports that older entries were evicted to make room.
func (b *Buffer) Add(userID string, ev events.Event) error {
	ub := b.bufferFor(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()

	heap.Push(&ub.heap, BufferedEvent{Event: ev, InsertedAt: b.sequence.Add(1)})

	if len(ub.heap) <= b.MaxBufferSize {
		return nil
	}

	// Trim to the MaxBufferSize latest entries, dropping the earliest
	// (oldest, not newest): pop everything into time order and keep the tail.
	all := make(userHeap, 0, len(ub.heap))
	for len(ub.heap) > 0 {
		all = append(all, heap.Pop(&ub.heap).(BufferedEvent))
	}
	dropped := len(all) - b.MaxBufferSize
	ub.heap = append(userHeap(nil), all[dropped:]...)
	heap.Init(&ub.heap)

	if b.Logger != nil {
		b.Logger.Warn("ordering buffer overflow, dropped oldest events",
			"user_id", userID, "dropped", dropped)
	}
	return apperr.ErrBufferOverflow
}

// Drain pops up to max events in heap order and invokes handler
// sequentially. A handler error drops that event (emitting
// event_processing_failed is the caller's responsibility, via the
// returned failed events) and processing continues. Context
// cancellation stops the drain immediately; events not yet popped remain
// buffered for a future call.
func (b *Buffer) Drain(ctx context.Context, userID string, handler Handler, max int) (processed int, failed []events.Event) {
	ub := b.bufferFor(userID)

	for processed+len(failed) < max {
		select {
		case <-ctx.Done():
			return processed, failed
		default:
		}

		ub.mu.Lock()
		if len(ub.heap) == 0 {
			ub.mu.Unlock()
			break
		}
		next := heap.Pop(&ub.heap).(BufferedEvent)
		ub.mu.Unlock()

		if err := handler(ctx, next.Event); err != nil {
			if b.Logger != nil {
				b.Logger.Error("ordering buffer handler failed, dropping event",
					"user_id", userID, "event_type", next.Event.EventType, "error", err)
			}
			failed = append(failed, next.Event)
			continue
		}
		processed++
	}
	return processed, failed
}

// PeekNextTimestamp reports the timestamp of the earliest pending event
// for userID, if any.
func (b *Buffer) PeekNextTimestamp(userID string) (ts time.Time, ok bool) {
	ub := b.bufferFor(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	if len(ub.heap) == 0 {
		return time.Time{}, false
	}
	return ub.heap[0].Event.Timestamp, true
}

// HasEvents reports whether userID currently has any buffered events.
func (b *Buffer) HasEvents(userID string) bool {
	ub := b.bufferFor(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	return len(ub.heap) > 0
}

// Status returns the current buffer depth per user.
func (b *Buffer) Status() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := make(map[string]int, len(b.buffers))
	for userID, ub := range b.buffers {
		ub.mu.Lock()
		status[userID] = len(ub.heap)
		ub.mu.Unlock()
	}
	return status
}
