package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unitscout"

// Metrics tracks operational metrics for category runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal       *prometheus.CounterVec
	ExtractionsTotal   *prometheus.CounterVec
	ReconcileActions   *prometheus.CounterVec
	RecordsDropped     *prometheus.CounterVec
	PersistenceFailure *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Page fetches by kind and outcome",
		}, []string{"kind", "outcome"}),
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Attribute extraction calls by category and outcome",
		}, []string{"category", "outcome"}),
		ReconcileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_actions_total",
			Help:      "Reconciliation decisions by category and action",
		}, []string{"category", "action"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records dropped by the pipeline",
		}, []string{"category", "stage"}),
		PersistenceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed record upserts",
		}, []string{"category"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Category run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"category", "status"}),
		logger: logger.With("component", "metrics"),
	}
	m.registry.MustRegister(
		m.FetchesTotal,
		m.ExtractionsTotal,
		m.ReconcileActions,
		m.RecordsDropped,
		m.PersistenceFailure,
		m.RunDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Fetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Extraction(category, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) Reconciled(category, action string) {
	if m == nil {
		return
	}
	m.ReconcileActions.WithLabelValues(category, action).Inc()
}

func (m *Metrics) Dropped(category, stage string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(category, stage).Inc()
}

func (m *Metrics) PersistFailed(category string) {
	if m == nil {
		return
	}
	m.PersistenceFailure.WithLabelValues(category).Inc()
}

func (m *Metrics) RunFinished(category, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(category, status).Observe(d.Seconds())
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
