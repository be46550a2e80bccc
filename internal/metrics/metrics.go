// Package metrics exposes Prometheus counters for scrape runs. The facade is
// gated on configuration: when disabled, every method is a no-op and no
// listener starts, which keeps cron runs on machines without a scrape target
// clean.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rescueradar/rescueradar/internal/config"
)

var (
	scrapesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rescueradar",
		Name:      "scrapes_total",
		Help:      "Scrape attempts by organization and outcome.",
	}, []string{"org", "outcome"})

	scrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rescueradar",
		Name:      "scrape_duration_seconds",
		Help:      "End-to-end scrape duration.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"org"})

	dogsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rescueradar",
		Name:      "dogs_found_total",
		Help:      "Listings discovered per scrape, pre-filter.",
	}, []string{"org"})

	dogsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rescueradar",
		Name:      "dogs_processed_total",
		Help:      "Committed listing rows by change classification.",
	}, []string{"org", "change"})

	processingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rescueradar",
		Name:      "processing_failures_total",
		Help:      "Item-level failures during a scrape.",
	}, []string{"org"})

	batchRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rescueradar",
		Name:      "scrapes_in_flight",
		Help:      "Scrapes currently running.",
	})
)

// Metrics is the gated facade.
type Metrics struct {
	enabled bool
	server  *http.Server
	logger  *slog.Logger
}

// New creates the facade and, when enabled with an address, starts the
// /metrics and /healthz listener in the background.
func New(cfg config.MetricsConfig, logger *slog.Logger) *Metrics {
	m := &Metrics{enabled: cfg.Enabled, logger: logger.With("component", "metrics")}
	if !cfg.Enabled || cfg.Addr == "" {
		return m
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	m.server = &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		m.logger.Info("metrics listener started", "addr", cfg.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics listener failed", "error", err)
		}
	}()
	return m
}

// ScrapeStarted marks a scrape in flight.
func (m *Metrics) ScrapeStarted() {
	if !m.enabled {
		return
	}
	batchRunning.Inc()
}

// ScrapeFinished records a completed scrape.
func (m *Metrics) ScrapeFinished(org, outcome string, duration time.Duration, found, added, updated, unchanged, failures int) {
	if !m.enabled {
		return
	}
	batchRunning.Dec()
	scrapesTotal.WithLabelValues(org, outcome).Inc()
	scrapeDuration.WithLabelValues(org).Observe(duration.Seconds())
	dogsFound.WithLabelValues(org).Add(float64(found))
	dogsProcessed.WithLabelValues(org, "added").Add(float64(added))
	dogsProcessed.WithLabelValues(org, "updated").Add(float64(updated))
	dogsProcessed.WithLabelValues(org, "unchanged").Add(float64(unchanged))
	processingFailures.WithLabelValues(org).Add(float64(failures))
}

// Shutdown stops the listener if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
