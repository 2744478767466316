package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pixelgate/internal/pixel"
	"pixelgate/internal/platform/metrics"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/httputil"
)

// pixelCacheMaxAge keeps the script cacheable long enough to absorb page
// nav bursts without pinning a stale privacy configuration for long.
const pixelCacheMaxAge = 300

// PixelHandler serves the tracking script.
type PixelHandler struct {
	svc     *pixel.Service
	metrics *metrics.Metrics
}

func (h *PixelHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	res, err := h.svc.ServePixel(r.Context(), clientID, r.Header.Get("Origin"), r.Header.Get("Referer"))
	if err != nil {
		h.count(httputil.StatusForCode(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(pixelCacheMaxAge))
	w.Header().Set("X-Client-ID", res.ClientID)
	w.Header().Set("X-Authorized-Domain", res.Domain)
	w.Header().Set("X-Privacy-Level", string(res.PrivacyLevel))
	w.Header().Set("X-Generated-At", res.GeneratedAt.UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Body))

	h.count(http.StatusOK)
}

func (h *PixelHandler) count(status int) {
	if h.metrics != nil {
		h.metrics.PixelRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
