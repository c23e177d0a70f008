// Package metrics provides Prometheus metrics for colblob.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the byte source, the
// materialization pipeline, the projector and the container server. All
// recorder methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Range read metrics
	RangeReadsTotal   prometheus.Counter
	RangeReadsFailed  prometheus.Counter
	RangeReadBytes    prometheus.Counter
	RangeReadLatency  prometheus.Histogram
	PreloadBytesTotal prometheus.Counter

	// Materialization metrics
	ChunksDecoded          prometheus.Counter
	RowsMaterialized       prometheus.Counter
	MaterializationsFailed prometheus.Counter
	MaterializeLatency     prometheus.Histogram

	// Projection metrics
	ProjectionsFailed *prometheus.CounterVec

	// Host loop metrics
	LoopPending prometheus.Gauge

	// Container server metrics
	ServerRequests  *prometheus.CounterVec
	ServerErrors    *prometheus.CounterVec
	ServerBytesSent prometheus.Counter
	ServerBusy      prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered on prometheus.DefaultRegisterer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics("colblob", prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with the given namespace,
// registered on reg. A nil reg creates unregistered metrics.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RangeReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_reads_total",
			Help:      "Total number of byte-range reads issued against containers",
		}),
		RangeReadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_reads_failed_total",
			Help:      "Total number of byte-range reads that failed",
		}),
		RangeReadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_read_bytes_total",
			Help:      "Total bytes delivered by byte-range reads",
		}),
		RangeReadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "range_read_latency_seconds",
			Help:      "Byte-range read latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		PreloadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_bytes_total",
			Help:      "Total bytes copied by sequential preloads",
		}),

		ChunksDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_decoded_total",
			Help:      "Total number of chunks pulled from decoders",
		}),
		RowsMaterialized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_materialized_total",
			Help:      "Total number of rows in successfully materialized arrays",
		}),
		MaterializationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_failed_total",
			Help:      "Total number of materializations that failed",
		}),
		MaterializeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "materialize_latency_seconds",
			Help:      "Materialization latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ProjectionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_failed_total",
			Help:      "Scalars that could not be projected, by data type",
		}, []string{"type"}),

		LoopPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_pending_tasks",
			Help:      "Number of tasks queued on the host loop",
		}),

		ServerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_requests_total",
			Help:      "Requests handled by the container server, by op",
		}, []string{"op"}),
		ServerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_errors_total",
			Help:      "Requests answered with an error, by op",
		}, []string{"op"}),
		ServerBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_bytes_sent_total",
			Help:      "Range payload bytes sent by the container server",
		}),
		ServerBusy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_busy_total",
			Help:      "Requests rejected because the worker queue was full",
		}),
	}
}

// RecordRangeRead records one completed byte-range read.
func (m *Metrics) RecordRangeRead(n int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RangeReadsTotal.Inc()
	m.RangeReadLatency.Observe(duration.Seconds())
	if err != nil {
		m.RangeReadsFailed.Inc()
		return
	}
	m.RangeReadBytes.Add(float64(n))
}

// RecordPreload records bytes copied by a sequential preload.
func (m *Metrics) RecordPreload(n int) {
	if m == nil {
		return
	}
	m.PreloadBytesTotal.Add(float64(n))
}

// RecordChunk records one chunk pulled from a decoder.
func (m *Metrics) RecordChunk() {
	if m == nil {
		return
	}
	m.ChunksDecoded.Inc()
}

// RecordMaterialize records the outcome of one materialization.
func (m *Metrics) RecordMaterialize(rows int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.MaterializeLatency.Observe(duration.Seconds())
	if err != nil {
		m.MaterializationsFailed.Inc()
		return
	}
	m.RowsMaterialized.Add(float64(rows))
}

// RecordProjectionFailure records a scalar of the given type that could
// not be projected.
func (m *Metrics) RecordProjectionFailure(typeName string) {
	if m == nil {
		return
	}
	m.ProjectionsFailed.WithLabelValues(typeName).Inc()
}

// UpdateLoop updates the host loop gauge.
func (m *Metrics) UpdateLoop(pending int) {
	if m == nil {
		return
	}
	m.LoopPending.Set(float64(pending))
}

// RecordServerRequest records one request handled by the container server.
// bytes is the payload size sent back, ignored when err is set.
func (m *Metrics) RecordServerRequest(op string, bytes int, err error) {
	if m == nil {
		return
	}
	m.ServerRequests.WithLabelValues(op).Inc()
	if err != nil {
		m.ServerErrors.WithLabelValues(op).Inc()
		return
	}
	m.ServerBytesSent.Add(float64(bytes))
}

// RecordServerBusy records a request rejected by a full worker queue.
func (m *Metrics) RecordServerBusy() {
	if m == nil {
		return
	}
	m.ServerBusy.Inc()
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
