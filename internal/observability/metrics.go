package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ze_dashboard"

type Metrics struct {
	registry *prometheus.Registry

	// Pipeline
	RefreshesTotal   *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	RecordsIngested  *prometheus.CounterVec
	BatchesRejected  *prometheus.CounterVec
	LastRefresh      prometheus.Gauge
	PerformanceByCat *prometheus.GaugeVec
	SSESubscribers   prometheus.Gauge

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry, so multiple
// instances can coexist in tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RefreshesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "refreshes_total",
			Help:      "Snapshot refresh attempts by trigger and result",
		}, []string{"trigger", "result"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "refresh_duration_seconds",
			Help:      "Time to fetch, ingest and aggregate one snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Records accepted into a snapshot, by dataset",
		}, []string{"dataset"}),
		BatchesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rejected_batches_total",
			Help:      "Batches rejected at ingestion, by dataset and reason",
		}, []string{"dataset", "reason"}),
		LastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last published snapshot",
		}),
		PerformanceByCat: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "performance_records",
			Help:      "Performance records in the current snapshot, by grouping and category",
		}, []string{"group", "category"}),
		SSESubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "live_subscribers",
			Help:      "Open live-update streams",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
