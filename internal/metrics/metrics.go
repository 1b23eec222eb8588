package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counters: conversation cache lookups by outcome.
	ConversationCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_cache_hits_total",
			Help: "Total number of conversation cache hits.",
		},
	)

	ConversationCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_cache_misses_total",
			Help: "Total number of conversation cache misses.",
		},
	)

	// Gauge: conversations held by the in-process cache.
	ConversationCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_cache_size",
			Help: "Number of conversations currently held by the in-process cache.",
		},
	)

	// Counter: answered questions by model.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_queries_total",
			Help: "Total number of answered questions.",
		},
		[]string{"model"},
	)

	// Histogram: assistant HTTP latency in seconds.
	AssistantLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_latency_seconds",
			Help:    "HTTP request latency for the assistant in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		ConversationCacheHitsTotal,
		ConversationCacheMissesTotal,
		ConversationCacheSize,
		QueriesTotal,
		AssistantLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		AssistantLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
