package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autobot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autobot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autobot_chat_requests_total",
			Help: "Total number of chat requests by outcome.",
		},
		[]string{"outcome"},
	)

	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autobot_inference_duration_seconds",
			Help:    "Latency of calls to the inference endpoint.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autobot_cache_hits_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	EmbeddingsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autobot_embeddings_pending",
			Help: "Records awaiting embedding backfill.",
		},
	)

	VendorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autobot_vendor_calls_total",
			Help: "Vendor API invocations by vendor and outcome.",
		},
		[]string{"vendor", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChatRequestsTotal,
		InferenceDuration,
		CacheHitsTotal,
		EmbeddingsPending,
		VendorCallsTotal,
	)
}
