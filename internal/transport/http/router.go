// Package http wires the public surface: the tracking script, the public
// configuration reads, event collection, the admin API and the operational
// endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixelgate/internal/admin"
	"pixelgate/internal/collect"
	"pixelgate/internal/pixel"
	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/platform/middleware"
	"pixelgate/internal/ratelimit"
	"pixelgate/pkg/platform/httputil"
)

// Deps carries everything the router composes. Health is optional; when nil
// the health endpoint only reports process liveness.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Pixel     *pixel.Service
	Collect   *collect.Service
	Admin     *admin.Service
	RateLimit *ratelimit.Middleware

	CollectionEndpoint string
	Health             func(ctx context.Context) error
}

// NewRouter assembles the full route tree with per-category rate limits.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", healthHandler(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	pixelHandler := &PixelHandler{svc: deps.Pixel, metrics: deps.Metrics}
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit(ratelimit.CategoryPixel))
		r.Get("/pixel/{client_id}/tracking.js", pixelHandler.Serve)
	})

	collectHandler := &CollectHandler{svc: deps.Collect, metrics: deps.Metrics}
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit(ratelimit.CategoryCollect))
		r.Post(deps.CollectionEndpoint, collectHandler.Ingest)
	})

	configHandler := &ConfigHandler{svc: deps.Pixel, metrics: deps.Metrics}
	adminHandler := &AdminHandler{svc: deps.Admin}
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit(ratelimit.CategoryPublicConfig))
			configHandler.Register(r)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.RateLimit.Limit(ratelimit.CategoryAdmin))
			adminHandler.Register(r)
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
