package writer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/metrics"
	"github.com/cablewatch/cablewatch/internal/queue"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

// fakeStore fails the first len(errs) inserts with the scripted errors
// and records every successful batch.
type fakeStore struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	batches [][]*telemetry.Reading
}

func (s *fakeStore) InsertReadings(ctx context.Context, readings []*telemetry.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return err
	}
	s.batches = append(s.batches, readings)
	return nil
}

func (s *fakeStore) inserted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, batch := range s.batches {
		for _, r := range batch {
			names = append(names, r.ModemName)
		}
	}
	return names
}

func fillQueue(q *queue.Queue, n int) {
	for i := 0; i < n; i++ {
		q.Push(&telemetry.Reading{ModemName: fmt.Sprintf("r%d", i)})
	}
}

func TestWriter_RetryPreservesOrder(t *testing.T) {
	q := queue.New(100)
	fillQueue(q, 5)
	store := &fakeStore{errs: []error{
		errors.Insertf("connection refused"),
		errors.Insertf("connection refused"),
	}}

	w := New(Config{Queue: q, Store: store, Metrics: metrics.New(), BatchSize: 3})

	// Two failing cycles requeue the batch at the front, a third
	// succeeds, a fourth flushes the remainder.
	for i := 0; i < 4; i++ {
		items := q.Drain(w.batchSize)
		if err := w.writeBatch(context.Background(), items); err != nil && i >= 2 {
			t.Fatalf("cycle %d: unexpected error %v", i, err)
		}
	}

	want := []string{"r0", "r1", "r2", "r3", "r4"}
	got := store.inserted()
	if len(got) != len(want) {
		t.Fatalf("expected %d inserted readings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected drained queue, got %d leftover", q.Len())
	}
}

func TestWriter_DropsAfterMaxAttempts(t *testing.T) {
	q := queue.New(100)
	fillQueue(q, 1)
	store := &fakeStore{errs: []error{
		errors.Insertf("table missing"),
		errors.Insertf("table missing"),
		errors.Insertf("table missing"),
	}}

	w := New(Config{Queue: q, Store: store, Metrics: metrics.New(), MaxAttempts: 2})

	for i := 0; i < 3; i++ {
		items := q.Drain(w.batchSize)
		w.writeBatch(context.Background(), items)
	}

	if q.Len() != 0 {
		t.Fatalf("expected expired reading gone from queue, got %d", q.Len())
	}
	if _, dropped, _ := w.Stats(); dropped != 1 {
		t.Errorf("expected 1 dropped reading, got %d", dropped)
	}
	// Two real insert attempts; the third cycle dropped without trying.
	if store.calls != 2 {
		t.Errorf("expected 2 insert attempts, got %d", store.calls)
	}
}

func TestWriter_RequeueKeepsAttempts(t *testing.T) {
	q := queue.New(100)
	fillQueue(q, 2)
	store := &fakeStore{errs: []error{errors.Insertf("timeout")}}

	w := New(Config{Queue: q, Store: store, Metrics: metrics.New()})

	items := q.Drain(w.batchSize)
	if err := w.writeBatch(context.Background(), items); !errors.IsInsert(err) {
		t.Fatalf("expected insert error, got %v", err)
	}

	requeued := q.Drain(w.batchSize)
	if len(requeued) != 2 {
		t.Fatalf("expected 2 requeued items, got %d", len(requeued))
	}
	for i, item := range requeued {
		if item.Attempts != 1 {
			t.Errorf("item %d: expected 1 attempt recorded, got %d", i, item.Attempts)
		}
	}
}

func TestWriter_RunFlushesOnShutdown(t *testing.T) {
	q := queue.New(100)
	fillQueue(q, 3)
	store := &fakeStore{}

	w := New(Config{
		Queue:        q,
		Store:        store,
		Metrics:      metrics.New(),
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := len(store.inserted()); got != 3 {
		t.Errorf("expected all 3 readings persisted, got %d", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after shutdown, got %d", q.Len())
	}
}

func TestWriter_EmptyQueueNoInsert(t *testing.T) {
	q := queue.New(10)
	store := &fakeStore{}
	w := New(Config{Queue: q, Store: store, Metrics: metrics.New()})

	items := q.Drain(w.batchSize)
	if err := w.writeBatch(context.Background(), items); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if store.calls != 0 {
		t.Errorf("expected no insert for empty batch, got %d calls", store.calls)
	}
}

func TestJittered(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := jittered(time.Second)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered(1s) = %v, outside half-interval bounds", got)
		}
	}

	// Sub-2ns backoffs pass through unchanged.
	if got := jittered(0); got != 0 {
		t.Errorf("jittered(0) = %v, want 0", got)
	}
	if got := jittered(1); got != 1 {
		t.Errorf("jittered(1ns) = %v, want 1ns", got)
	}
}
