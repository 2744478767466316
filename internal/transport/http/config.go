package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pixelgate/internal/pixel"
	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/tierconfig"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/httputil"
)

// ConfigHandler exposes resolved client configurations to collectors and
// internal tooling. Responses carry no credentials; the salt never leaves
// the client record.
type ConfigHandler struct {
	svc     *pixel.Service
	metrics *metrics.Metrics
}

func (h *ConfigHandler) Register(r chi.Router) {
	r.Get("/config/domain/{domain}", h.ByDomain)
	r.Get("/config/client/{client_id}", h.ByClient)
}

func (h *ConfigHandler) ByDomain(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ConfigForDomain(r.Context(), chi.URLParam(r, "domain"))
	h.respond(w, cfg, err)
}

func (h *ConfigHandler) ByClient(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ConfigForClient(r.Context(), chi.URLParam(r, "client_id"))
	h.respond(w, cfg, err)
}

func (h *ConfigHandler) respond(w http.ResponseWriter, cfg tierconfig.Config, err error) {
	if err != nil {
		h.count(httputil.StatusForCode(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}
	h.count(http.StatusOK)
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *ConfigHandler) count(status int) {
	if h.metrics != nil {
		h.metrics.ConfigRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
