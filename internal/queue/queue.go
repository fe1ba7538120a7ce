// Package queue provides the unbounded FIFO that carries decoded events from
// the webhook handlers to the single dispatcher goroutine.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/vitabot/internal/domain"
)

// ErrClosed is returned by Dequeue once the queue is closed and empty.
var ErrClosed = errors.New("queue closed")

// EventQueue is a thread-safe FIFO of events.
//
// Enqueue never blocks: the queue grows in memory instead of dropping events,
// since the platform expects every acknowledged update to be handled. Any
// number of goroutines may enqueue; exactly one goroutine should dequeue.
//
// A buffered signal channel of size 1 wakes the consumer. Multiple enqueues
// coalesce into one wakeup; the consumer drains with TryDequeue before
// waiting again.
type EventQueue struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	signal chan struct{}
}

// New creates an empty queue.
func New() *EventQueue {
	return &EventQueue{
		events: make([]domain.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e to the back of the queue. It returns false, discarding
// the event, only when the queue has been closed.
func (q *EventQueue) Enqueue(e domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front event without blocking.
func (q *EventQueue) TryDequeue() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return domain.Event{}, false
	}

	e := q.events[0]
	// Clear the slot so the backing array does not pin payloads.
	q.events[0] = domain.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Dequeue removes and returns the front event, blocking until one is
// available. It returns ctx.Err() if ctx is cancelled first, and ErrClosed
// once the queue is closed and drained.
func (q *EventQueue) Dequeue(ctx context.Context) (domain.Event, error) {
	for {
		if e, ok := q.TryDequeue(); ok {
			return e, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes a blocked consumer. Events already
// queued can still be dequeued.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued event.
func (q *EventQueue) Drain() []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Event, len(q.events))
	copy(out, q.events)
	q.events = q.events[:0]
	return out
}
