// Package queue provides the bounded buffer coupling the sampler to the
// batch writer.
//
// The queue is the single shared mutable resource in the pipeline. Push and
// Drain may be called concurrently from the two loops; the mutex covers only
// the in-memory list manipulation and is never held across I/O.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/cablewatch/cablewatch/internal/telemetry"
)

// Item is one queued reading plus its delivery bookkeeping.
type Item struct {
	Reading *telemetry.Reading

	// Attempts counts completed insert attempts for this item. The writer
	// increments it on each failed batch and drops items that exceed the
	// attempt limit.
	Attempts int
}

// Queue is a capacity-bounded FIFO of readings awaiting persistence.
//
// Overflow policy is drop-oldest: when the datastore is unreachable for
// long periods, recent data is considered more valuable than historical
// backlog. Evictions are reported to the caller, never silent.
//
// Requeued items are placed at the front: they are first out on the next
// drain, and also first in line for eviction if pressure continues. That
// positional rule is the single tie-break between retry priority and
// drop-oldest; there is no per-item special casing.
//
// Queue is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int

	// Statistics
	pushCount    atomic.Int64
	drainCount   atomic.Int64
	dropCount    atomic.Int64
	requeueCount atomic.Int64
}

// New creates a Queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		items:    make([]Item, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a reading. If the queue is at capacity the oldest pending
// item is evicted to make room. Returns the number of evicted items (0 or 1)
// so the caller can log the data loss.
func (q *Queue) Push(r *telemetry.Reading) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := 0
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		evicted = 1
		q.dropCount.Add(1)
	}

	q.items = append(q.items, Item{Reading: r})
	q.pushCount.Add(1)

	return evicted
}

// Drain atomically removes up to max items in FIFO order. Returns an empty
// slice if the queue is empty. Never blocks; the writer owns its own
// wait/backoff between polls.
func (q *Queue) Drain(max int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || max <= 0 {
		return nil
	}

	n := max
	if n > len(q.items) {
		n = len(q.items)
	}

	out := make([]Item, n)
	copy(out, q.items[:n])

	// Shift remaining items down so the backing array doesn't pin
	// drained readings.
	m := copy(q.items, q.items[n:])
	for i := m; i < len(q.items); i++ {
		q.items[i] = Item{}
	}
	q.items = q.items[:m]

	q.drainCount.Add(int64(n))
	return out
}

// Requeue reinserts a failed batch at the front, preserving the batch's
// internal order. If the insertion overflows capacity, the oldest items of
// the combined queue are evicted under the same drop-oldest policy; since
// requeued items occupy the oldest positions, they are the first to go.
// Returns the number of evicted items.
func (q *Queue) Requeue(batch []Item) int {
	if len(batch) == 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	combined := make([]Item, 0, len(batch)+len(q.items))
	combined = append(combined, batch...)
	combined = append(combined, q.items...)

	evicted := 0
	if len(combined) > q.capacity {
		evicted = len(combined) - q.capacity
		combined = combined[evicted:]
		q.dropCount.Add(int64(evicted))
	}

	q.items = combined
	q.requeueCount.Add(int64(len(batch)))

	return evicted
}

// Len returns the current number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Stats returns queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	count := len(q.items)
	q.mu.Unlock()

	return Stats{
		Capacity:     q.capacity,
		Count:        count,
		PushCount:    q.pushCount.Load(),
		DrainCount:   q.drainCount.Load(),
		DropCount:    q.dropCount.Load(),
		RequeueCount: q.requeueCount.Load(),
	}
}

// Stats holds queue statistics.
type Stats struct {
	Capacity     int
	Count        int
	PushCount    int64
	DrainCount   int64
	DropCount    int64
	RequeueCount int64
}
