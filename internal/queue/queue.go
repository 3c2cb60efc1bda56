// Package queue implements the bounded event log between the matching engine
// and its downstream consumers (crank, indexer, custody layer).
//
// The queue is a fixed ring of event slots addressed by absolute head/tail
// sequence counters. A full queue is deliberate backpressure: pushes fail and
// the matching step that needed them aborts, rather than ever dropping or
// overwriting an unconsumed event. Delivery is at-least-once: Drain does not
// advance the head, Ack does, so consumers must be idempotent on Event.Seq.
package queue

import (
	"errors"

	"matchbook/internal/common"
)

var (
	// ErrFull signals backpressure: the consumer has to drain and ack
	// before matching can emit again.
	ErrFull = errors.New("event queue full")
	// ErrBadCapacity rejects a non-positive queue capacity.
	ErrBadCapacity = errors.New("queue capacity must be positive")
)

type Queue struct {
	buf  []common.Event
	head uint64 // Sequence of the oldest unacked event
	tail uint64 // Sequence the next push will get
}

func New(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	return &Queue{buf: make([]common.Event, capacity)}, nil
}

// Free returns how many more events fit before pushes fail.
func (q *Queue) Free() int {
	return len(q.buf) - q.Len()
}

// Len returns the number of unacked events.
func (q *Queue) Len() int {
	return int(q.tail - q.head)
}

// HeadSeq returns the sequence of the oldest unacked event.
func (q *Queue) HeadSeq() uint64 {
	return q.head
}

// TailSeq returns the sequence the next pushed event will receive.
func (q *Queue) TailSeq() uint64 {
	return q.tail
}

// Push appends an event, assigning it the next sequence number.
func (q *Queue) Push(ev common.Event) error {
	if q.tail-q.head >= uint64(len(q.buf)) {
		return ErrFull
	}
	ev.Seq = q.tail
	q.buf[q.tail%uint64(len(q.buf))] = ev
	q.tail++
	return nil
}

// Drain returns up to max unacked events starting at the head, without
// consuming them. Draining twice from the same head yields the same events.
func (q *Queue) Drain(max int) []common.Event {
	n := q.Len()
	if max >= 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]common.Event, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[(q.head+uint64(i))%uint64(len(q.buf))]
	}
	return out
}

// Ack acknowledges receipt of every event with Seq < upTo and frees their
// slots. Acking past the tail or behind the head is clamped, so redelivered
// acks are harmless. Returns the number of events freed.
func (q *Queue) Ack(upTo uint64) int {
	if upTo > q.tail {
		upTo = q.tail
	}
	if upTo <= q.head {
		return 0
	}
	freed := int(upTo - q.head)
	q.head = upTo
	return freed
}
