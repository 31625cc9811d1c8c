// Package metrics exposes Prometheus instrumentation and the application
// stats collector.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	generationsTotal           *prometheus.CounterVec
	generationDurationSeconds  prometheus.Histogram
	activeGenerations          prometheus.Gauge
	uploadFailuresTotal        prometheus.Counter
)

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "imagesvc_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "code"})

		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imagesvc_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "imagesvc_generations_total",
			Help: "Image generation attempts, by outcome status.",
		}, []string{"status"})

		generationDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "imagesvc_generation_duration_seconds",
			Help:    "End to end image generation latency.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 150},
		})

		activeGenerations = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "imagesvc_active_generations",
			Help: "Generations currently in flight.",
		})

		uploadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "imagesvc_blob_upload_failures_total",
			Help: "Blob uploads that failed after a successful generation.",
		})
	})
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveGeneration records a finished generation attempt.
func ObserveGeneration(status string, duration time.Duration) {
	if generationsTotal == nil {
		return
	}
	generationsTotal.WithLabelValues(status).Inc()
	generationDurationSeconds.Observe(duration.Seconds())
}

// GenerationStarted increments the in-flight gauge and returns a done
// function that decrements it.
func GenerationStarted() func() {
	if activeGenerations == nil {
		return func() {}
	}
	activeGenerations.Inc()
	return func() { activeGenerations.Dec() }
}

// ObserveUploadFailure counts a non-fatal blob upload failure.
func ObserveUploadFailure() {
	if uploadFailuresTotal == nil {
		return
	}
	uploadFailuresTotal.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
