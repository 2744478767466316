package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/platform/middleware"
	"pixelgate/pkg/platform/httputil"
)

// Middleware wraps routes with per-category sliding-window admission.
type Middleware struct {
	limiter  *Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type MiddlewareOption func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) MiddlewareOption {
	return func(m *Middleware) { m.disabled = disabled }
}

// WithMetrics records blocked requests per category.
func WithMetrics(mx *metrics.Metrics) MiddlewareOption {
	return func(m *Middleware) { m.metrics = mx }
}

func NewMiddleware(limiter *Limiter, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit returns chi-compatible middleware enforcing the category's budget,
// keyed by caller IP.
func (m *Middleware) Limit(category Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			identity := middleware.ClientIP(r)
			blocked, retryAfter := m.limiter.IsRateLimited(identity, category, time.Now())
			if !blocked {
				next.ServeHTTP(w, r)
				return
			}

			if m.metrics != nil {
				m.metrics.RateLimitBlocks.WithLabelValues(string(category)).Inc()
			}
			m.logger.WarnContext(r.Context(), "rate limit exceeded",
				"request_id", middleware.GetRequestID(r.Context()),
				"category", category,
				"retry_after_s", retryAfter.Seconds(),
			)
			writeRateLimited(w, retryAfter)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limited",
		"message":     "Too many requests. Please try again later.",
		"retry_after": seconds,
	})
}
