package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated prometheus registry. It is constructed once in
// main and injected into the services that record to it, so tests can each
// build their own without collisions on the default registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ImportJobs  *prometheus.CounterVec
	ScanJobs    *prometheus.CounterVec
	DocsIngested prometheus.Counter
	PartsIngested prometheus.Counter

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	RenderBusy prometheus.Counter
}

// New builds a Metrics with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcquery_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ipcquery_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ImportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcquery_import_jobs_total",
			Help: "Import jobs by terminal status.",
		}, []string{"status"}),
		ScanJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcquery_scan_jobs_total",
			Help: "Scan jobs by terminal status.",
		}, []string{"status"}),
		DocsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcquery_documents_ingested_total",
			Help: "Documents written by the merge engine.",
		}),
		PartsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcquery_parts_ingested_total",
			Help: "Part rows written by the merge engine.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcquery_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcquery_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
		RenderBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcquery_render_busy_total",
			Help: "Render requests rejected by backpressure.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.ImportJobs,
		m.ScanJobs,
		m.DocsIngested,
		m.PartsIngested,
		m.CacheHits,
		m.CacheMisses,
		m.RenderBusy,
	)

	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
