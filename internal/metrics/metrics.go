// Package metrics exposes the Prometheus instruments of the capex binaries.
// A nil *Registry is valid and records nothing, so packages can take one
// without forcing tests to build it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every capex metric on its own prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	IngestedRows  *prometheus.CounterVec
	Commits       *prometheus.CounterVec
	UpsertedRows  *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
}

func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),
		IngestedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capex_ingested_rows_total",
				Help: "Ledger rows seen by the ingestion validator",
			},
			[]string{"result"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capex_forecast_commits_total",
				Help: "Forecast commits by outcome",
			},
			[]string{"result"},
		),
		UpsertedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capex_upserted_rows_total",
				Help: "Rows written to the ledger by source",
			},
			[]string{"source"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capex_store_errors_total",
				Help: "Failed ledger store calls by operation",
			},
			[]string{"op"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capex_cache_requests_total",
				Help: "Cached read lookups by resource and result",
			},
			[]string{"resource", "result"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capex_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capex_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	m.reg.MustRegister(
		m.IngestedRows,
		m.Commits,
		m.UpsertedRows,
		m.StoreErrors,
		m.CacheRequests,
		m.HTTPDuration,
		m.BreakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry to tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

func (m *Registry) RecordIngest(accepted, rejected int) {
	if m == nil {
		return
	}
	m.IngestedRows.WithLabelValues("accepted").Add(float64(accepted))
	m.IngestedRows.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Registry) RecordCommit(result string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(result).Inc()
}

func (m *Registry) RecordUpsert(source string, rows int) {
	if m == nil {
		return
	}
	m.UpsertedRows.WithLabelValues(source).Add(float64(rows))
}

func (m *Registry) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Registry) RecordCache(resource string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(resource, result).Inc()
}

func (m *Registry) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Registry) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
