// Package lockfree provides lock-free data structures for concurrent processing
package lockfree

import (
	"runtime"
	"sync/atomic"
)

// Queue is a bounded lock-free multi-producer multi-consumer FIFO queue.
// Every slot carries a sequence number that tells producers and consumers
// whose turn it is, so a value is only read after its producer finished
// writing it.
type Queue[T any] struct {
	buffer   []slot[T]
	capacity uint64
	mask     uint64

	enqueuePos atomic.Uint64
	_padding1  [7]uint64 //nolint:unused // keep the two cursors on separate cache lines

	dequeuePos atomic.Uint64
	_padding2  [7]uint64 //nolint:unused
}

type slot[T any] struct {
	sequence atomic.Uint64
	value    T
}

// NewQueue creates a queue holding at least capacity items.
// Capacity is rounded up to the next power of 2.
func NewQueue[T any](capacity int) *Queue[T] {
	c := uint64(1)
	for c < uint64(capacity) {
		c <<= 1
	}

	q := &Queue[T]{
		buffer:   make([]slot[T], c),
		capacity: c,
		mask:     c - 1,
	}
	for i := uint64(0); i < c; i++ {
		q.buffer[i].sequence.Store(i)
	}
	return q
}

// Enqueue appends item. It returns false if the queue is full.
func (q *Queue[T]) Enqueue(item T) bool {
	for {
		pos := q.enqueuePos.Load()
		s := &q.buffer[pos&q.mask]
		seq := s.sequence.Load()

		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				s.value = item
				s.sequence.Store(pos + 1)
				return true
			}
		case diff < 0:
			return false
		}

		runtime.Gosched()
	}
}

// Dequeue removes the oldest item. It returns false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	for {
		pos := q.dequeuePos.Load()
		s := &q.buffer[pos&q.mask]
		seq := s.sequence.Load()

		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.dequeuePos.CompareAndSwap(pos, pos+1) {
				item := s.value
				s.value = zero
				s.sequence.Store(pos + q.mask + 1)
				return item, true
			}
		case diff < 0:
			return zero, false
		}

		runtime.Gosched()
	}
}

// Drain dequeues up to max items, or everything if max <= 0, appending them to dst.
func (q *Queue[T]) Drain(dst []T, max int) []T {
	for n := 0; max <= 0 || n < max; n++ {
		item, ok := q.Dequeue()
		if !ok {
			break
		}
		dst = append(dst, item)
	}
	return dst
}

// Size returns the number of queued items. It may be stale under concurrent use.
func (q *Queue[T]) Size() int {
	enq := q.enqueuePos.Load()
	deq := q.dequeuePos.Load()
	if enq < deq {
		return 0
	}
	return int(enq - deq)
}

// IsEmpty reports whether the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Size() == 0
}

// Capacity returns the number of slots.
func (q *Queue[T]) Capacity() int {
	return int(q.capacity)
}
