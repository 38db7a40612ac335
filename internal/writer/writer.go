// Package writer drains the reading queue into the datastore in
// batches. Failed batches go back to the front of the queue and the
// writer backs off exponentially until an insert succeeds.
package writer

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/metrics"
	"github.com/cablewatch/cablewatch/internal/queue"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

var log = logging.Component("writer")

// Datastore is the insert surface the writer needs. Batches are
// all-or-nothing: a non-nil error means no reading of the batch was
// persisted.
type Datastore interface {
	InsertReadings(ctx context.Context, readings []*telemetry.Reading) error
}

// Config holds writer configuration.
type Config struct {
	Queue   *queue.Queue
	Store   Datastore
	Metrics *metrics.Metrics

	// PollInterval is how often the queue is checked when healthy. It
	// also seeds the first backoff step after a failure.
	PollInterval time.Duration

	// BatchSize caps how many readings one insert carries.
	BatchSize int

	// MaxBackoff caps the failure backoff.
	MaxBackoff time.Duration

	// MaxAttempts is how many failed inserts a reading survives before
	// it is dropped.
	MaxAttempts int
}

// Writer moves readings from the queue into the datastore.
//
// Writer is safe for concurrent use with the sampler pushing into the
// shared queue.
type Writer struct {
	queue   *queue.Queue
	store   Datastore
	metrics *metrics.Metrics

	pollInterval time.Duration
	batchSize    int
	maxBackoff   time.Duration
	maxAttempts  int

	inserted atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64
}

// New creates a Writer with defaults filled in for zero config fields.
func New(cfg Config) *Writer {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = config.DefaultWriterPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultWriterBatchSize
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = config.DefaultWriterMaxBackoff
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultBatchMaxAttempts
	}

	return &Writer{
		queue:        cfg.Queue,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxBackoff:   maxBackoff,
		maxAttempts:  maxAttempts,
	}
}

// Run blocks until ctx is cancelled, then makes a final flush attempt
// so queued readings are not lost on a clean shutdown.
func (w *Writer) Run(ctx context.Context) error {
	log.Info("writer started",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_attempts", w.maxAttempts)

	var backoff time.Duration

	for {
		wait := w.pollInterval
		if backoff > 0 {
			wait = jittered(backoff)
		}

		select {
		case <-ctx.Done():
			w.finalFlush()
			log.Info("writer stopped",
				"inserted", w.inserted.Load(),
				"dropped", w.dropped.Load(),
				"failures", w.failures.Load())
			return ctx.Err()
		case <-time.After(wait):
		}

		items := w.queue.Drain(w.batchSize)
		if len(items) == 0 {
			backoff = 0
			w.metrics.WriterBackoff.Set(0)
			continue
		}

		if err := w.writeBatch(ctx, items); err != nil {
			backoff = w.nextBackoff(backoff)
			w.metrics.WriterBackoff.Set(backoff.Seconds())
			log.Error("insert failed, backing off",
				"kind", errors.Kind(err),
				"batch", len(items),
				"backoff", backoff,
				"queued", w.queue.Len(),
				"error", err)
		} else {
			backoff = 0
			w.metrics.WriterBackoff.Set(0)
		}
		w.metrics.QueueDepth.Set(float64(w.queue.Len()))
	}
}

// writeBatch inserts one drained batch. Items that already burned
// through their attempts are dropped; the survivors go back to the
// front of the queue on failure with their attempt counts intact.
func (w *Writer) writeBatch(ctx context.Context, items []queue.Item) error {
	kept := items[:0]
	expired := 0
	for i := range items {
		items[i].Attempts++
		if items[i].Attempts > w.maxAttempts {
			expired++
			continue
		}
		kept = append(kept, items[i])
	}
	if expired > 0 {
		log.Warn("readings dropped after max insert attempts",
			"dropped", expired,
			"max_attempts", w.maxAttempts)
		w.dropped.Add(int64(expired))
		w.metrics.ReadingsDropped.Add(float64(expired))
	}
	if len(kept) == 0 {
		return nil
	}

	readings := make([]*telemetry.Reading, len(kept))
	for i, item := range kept {
		readings[i] = item.Reading
	}

	if err := w.store.InsertReadings(ctx, readings); err != nil {
		w.failures.Add(1)
		w.metrics.InsertFailures.Inc()
		if evicted := w.queue.Requeue(kept); evicted > 0 {
			log.Warn("requeued batch overflowed queue",
				"evicted", evicted)
			w.metrics.QueueEvictions.Add(float64(evicted))
		}
		return err
	}

	w.inserted.Add(int64(len(readings)))
	w.metrics.InsertsTotal.Add(float64(len(readings)))
	log.Debug("batch inserted",
		"count", len(readings),
		"queued", w.queue.Len())
	return nil
}

// nextBackoff doubles the base backoff, seeding from the poll interval
// and capping at the configured maximum.
func (w *Writer) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if current <= 0 {
		next = w.pollInterval
	}
	if next > w.maxBackoff {
		next = w.maxBackoff
	}
	return next
}

// jittered spreads a backoff by up to half its value in either
// direction so repeated failures don't synchronize with the sampler.
func jittered(backoff time.Duration) time.Duration {
	if backoff < 2 {
		return backoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
	if rand.Intn(2) == 0 {
		jitter = -jitter
	}
	return backoff + jitter
}

// finalFlush makes one last insert attempt for whatever is queued.
// Failures here are logged and the readings are lost; the process is
// exiting.
func (w *Writer) finalFlush() {
	items := w.queue.Drain(w.queue.Len())
	if len(items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	readings := make([]*telemetry.Reading, len(items))
	for i, item := range items {
		readings[i] = item.Reading
	}
	if err := w.store.InsertReadings(ctx, readings); err != nil {
		log.Error("final flush failed, readings lost",
			"count", len(readings),
			"error", err)
		return
	}
	w.inserted.Add(int64(len(readings)))
	log.Info("final flush complete", "count", len(readings))
}

// Stats returns lifetime writer counters.
func (w *Writer) Stats() (inserted, dropped, failures int64) {
	return w.inserted.Load(), w.dropped.Load(), w.failures.Load()
}
