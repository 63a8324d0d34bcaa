package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackcache",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trackcache",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	FetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackcache",
		Name:      "fetches_total",
		Help:      "Total background track fetches by result.",
	}, []string{"result"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trackcache",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of successful track fetches in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	EvictionRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trackcache",
		Name:      "eviction_runs_total",
		Help:      "Total eviction sweeps that found the cache over its limit.",
	})

	EvictedFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trackcache",
		Name:      "evicted_files_total",
		Help:      "Total artifacts deleted by eviction.",
	})

	EvictedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trackcache",
		Name:      "evicted_bytes_total",
		Help:      "Total bytes freed by eviction.",
	})

	CacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackcache",
		Name:      "cache_size_bytes",
		Help:      "Current total size of the artifact cache in bytes.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackcache",
		Name:      "ws_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FetchesTotal,
		FetchDuration,
		EvictionRunsTotal,
		EvictedFilesTotal,
		EvictedBytesTotal,
		CacheSizeBytes,
		WSClients,
	)
}
