// Package metrics exposes daemon counters over Prometheus. The
// collectors are optional: when no listen address is configured the
// registry is still populated but never served.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cablewatch/cablewatch/internal/logging"
)

const namespace = "cablewatch"

var metricsLog = logging.Component("metrics")

// Metrics holds the daemon's collectors on a private registry so tests
// can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ScrapesTotal    *prometheus.CounterVec
	ScrapeErrors    *prometheus.CounterVec
	ScrapeDuration  prometheus.Histogram
	QueueDepth      prometheus.Gauge
	QueueEvictions  prometheus.Counter
	InsertsTotal    prometheus.Counter
	InsertFailures  prometheus.Counter
	ReadingsDropped prometheus.Counter
	WriterBackoff   prometheus.Gauge
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Scrape cycles by result.",
		}, []string{"result"}),
		ScrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_errors_total",
			Help:      "Scrape failures by error kind.",
		}, []string{"kind"}),
		ScrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Histogram of modem scrape latencies.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Readings currently buffered for insert.",
		}),
		QueueEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evictions_total",
			Help:      "Readings evicted from a full queue.",
		}),
		InsertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_total",
			Help:      "Readings successfully inserted.",
		}),
		InsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insert_failures_total",
			Help:      "Failed insert batches.",
		}),
		ReadingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Readings dropped after exhausting insert attempts.",
		}),
		WriterBackoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_backoff_seconds",
			Help:      "Current insert retry backoff, zero when healthy.",
		}),
	}

	m.registry.MustRegister(
		m.ScrapesTotal,
		m.ScrapeErrors,
		m.ScrapeDuration,
		m.QueueDepth,
		m.QueueEvictions,
		m.InsertsTotal,
		m.InsertFailures,
		m.ReadingsDropped,
		m.WriterBackoff,
	)
	return m
}

// Handler returns the scrape endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr until ctx is cancelled, then
// drains the listener and returns ctx.Err(). A listener error before
// cancellation is returned as-is.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		metricsLog.Info("metrics listener started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}
	metricsLog.Info("metrics listener stopped")
	return ctx.Err()
}
