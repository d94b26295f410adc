package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faces",
		Name:      "sessions_created_total",
		Help:      "Total number of sessions persisted",
	})

	FileEncodings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faces",
		Name:      "file_encodings_total",
		Help:      "Per-file encoding attempts by outcome",
	}, []string{"outcome"})

	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faces",
		Name:      "encode_duration_seconds",
		Help:      "Duration of remote face encoding calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faces",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faces",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
