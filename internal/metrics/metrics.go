// Package metrics provides Prometheus metrics for ingestion, queries and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for docchat. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upload metrics
	UploadsTotal *prometheus.CounterVec

	// Ingestion metrics
	JobsTotal           *prometheus.CounterVec
	JobDuration         prometheus.Histogram
	RecordsWrittenTotal prometheus.Counter
	QueueJobs           *prometheus.GaugeVec

	// Query metrics
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	ChunksRetrieved prometheus.Histogram
}

// New creates all metrics on a private registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.UploadsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_uploads_total",
			Help: "Total number of uploads by outcome",
		},
		[]string{"status"},
	)

	m.JobsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_ingestion_jobs_total",
			Help: "Total number of ingestion attempts by outcome",
		},
		[]string{"status"},
	)
	m.JobDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_ingestion_job_duration_seconds",
			Help:    "Duration of ingestion attempts in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
	m.RecordsWrittenTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_index_records_written_total",
			Help: "Total number of index records written by workers",
		},
	)
	m.QueueJobs = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docchat_queue_jobs",
			Help: "Jobs in the upload queue by state",
		},
		[]string{"state"},
	)

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_queries_total",
			Help: "Total number of questions by outcome",
		},
		[]string{"status"},
	)
	m.QueryDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_query_duration_seconds",
			Help:    "Duration of question answering in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	m.ChunksRetrieved = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_query_chunks_retrieved",
			Help:    "Number of chunks retrieved per question",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveUpload records an upload outcome ("accepted", "rejected", "error").
func (m *Metrics) ObserveUpload(status string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
}

// ObserveJob records one ingestion attempt ("ok" or "error") and the records it wrote.
func (m *Metrics) ObserveJob(status string, d time.Duration, written int) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(d.Seconds())
	m.RecordsWrittenTotal.Add(float64(written))
}

// ObserveQuery records one answered (or failed) question.
func (m *Metrics) ObserveQuery(status string, d time.Duration, retrieved int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(d.Seconds())
	if status == "ok" {
		m.ChunksRetrieved.Observe(float64(retrieved))
	}
}

// SetQueue updates the queue gauges.
func (m *Metrics) SetQueue(s models.QueueStats) {
	if m == nil {
		return
	}
	m.QueueJobs.WithLabelValues("queued").Set(float64(s.Queued))
	m.QueueJobs.WithLabelValues("in_flight").Set(float64(s.InFlight))
	m.QueueJobs.WithLabelValues("dead").Set(float64(s.Dead))
}
