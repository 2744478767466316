// Package metrics holds the shared Prometheus metrics for the request
// pipeline. Component-local metrics (geo cache, template reloads) live next
// to their components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all cross-cutting Prometheus metrics for the application.
type Metrics struct {
	PixelRequests   *prometheus.CounterVec
	ConfigRequests  *prometheus.CounterVec
	CollectRequests *prometheus.CounterVec
	RateLimitBlocks *prometheus.CounterVec
}

// New creates and registers all pipeline metrics.
func New() *Metrics {
	return &Metrics{
		PixelRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_pixel_requests_total",
			Help: "Tracking script requests by HTTP status.",
		}, []string{"status"}),
		ConfigRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_config_requests_total",
			Help: "Public config requests by HTTP status.",
		}, []string{"status"}),
		CollectRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_collect_requests_total",
			Help: "Event collection requests by HTTP status.",
		}, []string{"status"}),
		RateLimitBlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_ratelimit_blocked_total",
			Help: "Requests rejected by the rate limiter, by category.",
		}, []string{"category"}),
	}
}
