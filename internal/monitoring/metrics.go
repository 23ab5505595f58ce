// Package monitoring records what the gateway did: Prometheus counters for
// scraping, a SQLite telemetry log for inspection, and a live event feed
// for the dashboard WebSocket.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts completed inbound requests.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_gateway",
		Name:      "requests_total",
		Help:      "Completed inbound requests by dialect, provider and status class.",
	}, []string{"dialect", "provider", "status"})

	// UpstreamRetries counts retried upstream attempts (failover rotations).
	UpstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_gateway",
		Name:      "upstream_retries_total",
		Help:      "Upstream attempts that failed and were retried.",
	}, []string{"provider"})

	// AuthRefreshes counts OAuth refresh attempts triggered by a 401.
	AuthRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_gateway",
		Name:      "auth_refreshes_total",
		Help:      "Credential refresh attempts by provider and result.",
	}, []string{"provider", "result"})

	// RequestDuration observes end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llm_gateway",
		Name:      "request_duration_seconds",
		Help:      "End-to-end latency of inbound requests.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"dialect", "provider"})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
