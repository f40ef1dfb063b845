// Package metrics exposes the service's prometheus instrumentation on a
// private registry, keeping default-registry noise out of the scrape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "badge_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "badge_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	compositesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_composites_total",
			Help: "Image composite operations by outcome.",
		},
		[]string{"status"},
	)

	imageFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_image_fetches_total",
			Help: "Image fetches by source (cache, gateway) or error.",
		},
		[]string{"source"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDuration,
		httpInFlight,
		compositesTotal,
		imageFetchesTotal,
	)
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one completed HTTP request.
func RecordRequest(route, code string, seconds float64) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RequestStarted and RequestFinished track in-flight requests.
func RequestStarted()  { httpInFlight.Inc() }
func RequestFinished() { httpInFlight.Dec() }

// RecordComposite counts one composite operation ("ok" or "error").
func RecordComposite(status string) {
	compositesTotal.WithLabelValues(status).Inc()
}

// RecordFetch counts one image fetch by source ("cache", "gateway", "error").
func RecordFetch(source string) {
	imageFetchesTotal.WithLabelValues(source).Inc()
}
