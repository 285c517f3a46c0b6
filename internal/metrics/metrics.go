package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "http_requests_total",
		Help:      "Total control API requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamhost",
		Name:      "http_request_duration_seconds",
		Help:      "Control API request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	StreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "stream_requests_total",
		Help:      "Streaming listener responses by transfer strategy and status code.",
	}, []string{"strategy", "status"})

	StreamBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "stream_bytes_total",
		Help:      "Bytes written to streaming clients by transfer strategy.",
	}, []string{"strategy"})

	StreamActiveTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamhost",
		Name:      "stream_active_transfers",
		Help:      "Number of in-flight streaming responses.",
	})

	ServedFileChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "served_file_changes_total",
		Help:      "Total number of active-file selections.",
	})

	IndexEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamhost",
		Name:      "index_entries",
		Help:      "Number of entries in the metadata index.",
	})

	IndexPersistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamhost",
		Name:      "index_persist_duration_seconds",
		Help:      "Duration of full metadata index rewrites in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	IndexPersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "index_persist_failures_total",
		Help:      "Total number of failed metadata index rewrites.",
	})

	IndexPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamhost",
		Name:      "index_pruned_entries_total",
		Help:      "Total number of index entries dropped by sync.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamRequestsTotal,
		StreamBytesTotal,
		StreamActiveTransfers,
		ServedFileChangesTotal,
		IndexEntries,
		IndexPersistDuration,
		IndexPersistFailuresTotal,
		IndexPrunedTotal,
	)
}
