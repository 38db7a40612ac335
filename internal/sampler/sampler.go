// Package sampler drives the scrape loop: fetch from the modem backend,
// parse into a reading, enqueue for insertion.
//
// Cycles are anchored to the start of each scrape so the effective rate
// stays at one reading per interval regardless of how long a scrape
// takes. A cycle that overruns its interval starts the next scrape
// immediately.
package sampler

import (
	"context"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/metrics"
	"github.com/cablewatch/cablewatch/internal/modem"
	"github.com/cablewatch/cablewatch/internal/queue"
)

var log = logging.Component("sampler")

// Config holds sampler configuration.
type Config struct {
	Backend modem.Backend
	Queue   *queue.Queue
	Metrics *metrics.Metrics

	// Interval between cycle starts. Must be at least one second.
	Interval time.Duration

	// ReportCycles is how many cycles pass between latency summaries.
	ReportCycles int

	// SketchAccuracy is the relative accuracy of the latency sketch.
	SketchAccuracy float64
}

// Sampler runs the scrape loop for one modem.
type Sampler struct {
	backend modem.Backend
	queue   *queue.Queue
	metrics *metrics.Metrics

	interval     time.Duration
	reportCycles int

	sketch         *ddsketch.DDSketch
	sketchAccuracy float64
	cycles         int
}

// New creates a Sampler. The latency sketch is best effort: if it
// cannot be built the sampler runs without percentile summaries.
func New(cfg Config) *Sampler {
	reportCycles := cfg.ReportCycles
	if reportCycles <= 0 {
		reportCycles = config.DefaultLatencyReportCycles
	}
	accuracy := cfg.SketchAccuracy
	if accuracy <= 0 {
		accuracy = config.DefaultLatencySketchAccuracy
	}

	s := &Sampler{
		backend:        cfg.Backend,
		queue:          cfg.Queue,
		metrics:        cfg.Metrics,
		interval:       cfg.Interval,
		reportCycles:   reportCycles,
		sketchAccuracy: accuracy,
	}
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		s.sketch = sketch
	}
	return s
}

// Run blocks scraping until ctx is cancelled. Fetch and parse failures
// are logged and skipped; the loop only stops on cancellation.
func (s *Sampler) Run(ctx context.Context) error {
	if s.interval < time.Second {
		return errors.Configf("scrape interval %s below 1s minimum", s.interval)
	}

	log.Info("sampler started", "interval", s.interval)

	for {
		cycleStart := time.Now()
		s.scrape(ctx)

		next := cycleStart.Add(s.interval)
		wait := time.Until(next)
		if wait <= 0 {
			// Overran the interval; start the next cycle now but
			// still honor cancellation.
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// scrape runs one fetch+parse+enqueue cycle.
func (s *Sampler) scrape(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()

	raw, err := s.backend.Fetch(fetchCtx)
	if err != nil {
		s.recordFailure(err)
		return
	}

	reading, err := s.backend.Parse(raw)
	if err != nil {
		s.recordFailure(err)
		return
	}

	latency := time.Since(start)
	reading.ScrapeLatency = latency.Seconds()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	evicted := s.queue.Push(reading)
	if evicted > 0 {
		log.Warn("queue full, oldest readings evicted",
			"evicted", evicted,
			"capacity", s.queue.Cap())
		s.metrics.QueueEvictions.Add(float64(evicted))
	}
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	s.metrics.ScrapesTotal.WithLabelValues("ok").Inc()
	s.metrics.ScrapeDuration.Observe(latency.Seconds())

	down, up := reading.ChannelCounts()
	log.Debug("reading enqueued",
		"downstream", down,
		"upstream", up,
		"latency_ms", latency.Milliseconds(),
		"queued", s.queue.Len())

	s.observeLatency(latency.Seconds())
}

// recordFailure logs and counts a failed cycle. A parse failure means
// the modem answered but the payload format changed, so it outranks a
// fetch failure.
func (s *Sampler) recordFailure(err error) {
	kind := errors.Kind(err)
	if errors.IsParse(err) {
		log.Log(context.Background(), logging.LevelCritical, "scrape failed", "kind", kind, "error", err)
	} else {
		log.Error("scrape failed", "kind", kind, "error", err)
	}
	s.metrics.ScrapesTotal.WithLabelValues("error").Inc()
	s.metrics.ScrapeErrors.WithLabelValues(kind).Inc()
}

// observeLatency feeds the sketch and emits a summary every
// reportCycles successful scrapes.
func (s *Sampler) observeLatency(seconds float64) {
	if s.sketch == nil {
		return
	}
	s.sketch.Add(seconds)
	s.cycles++
	if s.cycles < s.reportCycles {
		return
	}

	p50, _ := s.sketch.GetValueAtQuantile(0.50)
	p95, _ := s.sketch.GetValueAtQuantile(0.95)
	max, _ := s.sketch.GetMaxValue()
	log.Info("scrape latency summary",
		"cycles", s.cycles,
		"p50_ms", int64(p50*1000),
		"p95_ms", int64(p95*1000),
		"max_ms", int64(max*1000))

	s.cycles = 0
	if sketch, err := ddsketch.NewDefaultDDSketch(s.sketchAccuracy); err == nil {
		s.sketch = sketch
	}
}
