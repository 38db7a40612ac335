package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cablewatch/cablewatch/internal/telemetry"
)

func reading(name string) *telemetry.Reading {
	r := &telemetry.Reading{
		ModemName: name,
		Model:     "MB8600",
		Timestamp: time.Now().UTC(),
	}
	r.Normalize()
	return r
}

func TestQueue_FIFO(t *testing.T) {
	q := New(100)

	for i := 0; i < 10; i++ {
		if evicted := q.Push(reading(fmt.Sprintf("r%d", i))); evicted != 0 {
			t.Errorf("push %d below capacity should not evict, got %d", i, evicted)
		}
	}

	items := q.Drain(10)
	if len(items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(items))
	}
	for i, it := range items {
		want := fmt.Sprintf("r%d", i)
		if it.Reading.ModemName != want {
			t.Errorf("item %d: expected %s, got %s", i, want, it.Reading.ModemName)
		}
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := New(25)

	// Push 26 distinct readings sequentially.
	dropped := 0
	for i := 1; i <= 26; i++ {
		dropped += q.Push(reading(fmt.Sprintf("r%d", i)))
	}

	if dropped != 1 {
		t.Errorf("expected exactly 1 eviction, got %d", dropped)
	}
	if q.Len() != 25 {
		t.Errorf("expected 25 retained, got %d", q.Len())
	}
	if got := q.Stats().DropCount; got != 1 {
		t.Errorf("expected drop_count=1, got %d", got)
	}

	// Queue holds items 2-26; item 1 was evicted.
	items := q.Drain(25)
	if items[0].Reading.ModemName != "r2" {
		t.Errorf("expected oldest=r2, got %s", items[0].Reading.ModemName)
	}
	if items[24].Reading.ModemName != "r26" {
		t.Errorf("expected newest=r26, got %s", items[24].Reading.ModemName)
	}
}

func TestQueue_DrainShort(t *testing.T) {
	q := New(50)

	for i := 0; i < 3; i++ {
		q.Push(reading(fmt.Sprintf("r%d", i)))
	}

	// Drain more than available: returns all, leaves the queue empty.
	items := q.Drain(10)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got len=%d", q.Len())
	}

	// Drain on empty queue never errors, returns nothing.
	if items := q.Drain(10); len(items) != 0 {
		t.Errorf("expected empty drain, got %d items", len(items))
	}
}

func TestQueue_RequeueFront(t *testing.T) {
	q := New(50)

	for i := 0; i < 6; i++ {
		q.Push(reading(fmt.Sprintf("r%d", i)))
	}

	// Writer drains a batch, insert fails, batch goes back to the front.
	batch := q.Drain(3)
	for i := range batch {
		batch[i].Attempts++
	}
	if evicted := q.Requeue(batch); evicted != 0 {
		t.Errorf("requeue below capacity should not evict, got %d", evicted)
	}

	// Subsequent drain returns the failed items first, in their original
	// relative order, followed by the rest.
	items := q.Drain(6)
	want := []string{"r0", "r1", "r2", "r3", "r4", "r5"}
	for i, it := range items {
		if it.Reading.ModemName != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], it.Reading.ModemName)
		}
	}
	if items[0].Attempts != 1 {
		t.Errorf("expected requeued item to keep attempts=1, got %d", items[0].Attempts)
	}
	if items[3].Attempts != 0 {
		t.Errorf("expected untouched item attempts=0, got %d", items[3].Attempts)
	}
}

func TestQueue_RequeueOverflow(t *testing.T) {
	q := New(25)

	for i := 0; i < 25; i++ {
		q.Push(reading(fmt.Sprintf("r%d", i)))
	}

	// Drain 5, then 5 more readings arrive while the insert is failing.
	batch := q.Drain(5)
	for i := 25; i < 30; i++ {
		q.Push(reading(fmt.Sprintf("r%d", i)))
	}

	// Requeue overflows capacity by 5. Requeued items occupy the oldest
	// positions, so they are the ones evicted.
	evicted := q.Requeue(batch)
	if evicted != 5 {
		t.Errorf("expected 5 evicted on requeue overflow, got %d", evicted)
	}
	if q.Len() != 25 {
		t.Errorf("expected len=25, got %d", q.Len())
	}

	items := q.Drain(25)
	if items[0].Reading.ModemName != "r5" {
		t.Errorf("expected oldest survivor=r5, got %s", items[0].Reading.ModemName)
	}
	if items[24].Reading.ModemName != "r29" {
		t.Errorf("expected newest=r29, got %s", items[24].Reading.ModemName)
	}
}

func TestQueue_RequeueLargerThanCapacity(t *testing.T) {
	q := New(25)

	batch := make([]Item, 30)
	for i := range batch {
		batch[i] = Item{Reading: reading(fmt.Sprintf("r%d", i))}
	}

	evicted := q.Requeue(batch)
	if evicted != 5 {
		t.Errorf("expected 5 evicted, got %d", evicted)
	}

	items := q.Drain(25)
	if items[0].Reading.ModemName != "r5" || items[24].Reading.ModemName != "r29" {
		t.Errorf("expected r5..r29, got %s..%s",
			items[0].Reading.ModemName, items[24].Reading.ModemName)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := New(25)

	for i := 0; i < 10; i++ {
		q.Push(reading(fmt.Sprintf("r%d", i)))
	}
	batch := q.Drain(4)
	q.Requeue(batch)

	stats := q.Stats()
	if stats.Capacity != 25 {
		t.Errorf("expected capacity=25, got %d", stats.Capacity)
	}
	if stats.Count != 10 {
		t.Errorf("expected count=10, got %d", stats.Count)
	}
	if stats.PushCount != 10 {
		t.Errorf("expected push_count=10, got %d", stats.PushCount)
	}
	if stats.DrainCount != 4 {
		t.Errorf("expected drain_count=4, got %d", stats.DrainCount)
	}
	if stats.RequeueCount != 4 {
		t.Errorf("expected requeue_count=4, got %d", stats.RequeueCount)
	}
	if stats.DropCount != 0 {
		t.Errorf("expected drop_count=0, got %d", stats.DropCount)
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New(500)

	var wg sync.WaitGroup
	numPushers := 8
	pushesPerWorker := 200

	for w := 0; w < numPushers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < pushesPerWorker; i++ {
				q.Push(reading(fmt.Sprintf("w%d-%d", id, i)))
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			q.Drain(10)
			q.Len()
		}
	}()

	wg.Wait()

	// No items lost except via explicit eviction.
	stats := q.Stats()
	total := stats.PushCount
	accounted := int64(stats.Count) + stats.DrainCount + stats.DropCount
	if total != accounted {
		t.Errorf("accounting mismatch: pushed=%d, count+drained+dropped=%d", total, accounted)
	}
}

func BenchmarkQueue_Push(b *testing.B) {
	q := New(10000)
	r := reading("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(r)
	}
}
