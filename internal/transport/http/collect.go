package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pixelgate/internal/collect"
	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/platform/middleware"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/httputil"
)

// maxEventBody bounds the request body; pixel events are small.
const maxEventBody = 64 << 10

// CollectHandler accepts event posts from the pixel runtime.
type CollectHandler struct {
	svc     *collect.Service
	metrics *metrics.Metrics
}

func (h *CollectHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var evt collect.Event
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		h.count(http.StatusBadRequest)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event payload"))
		return
	}

	err := h.svc.Ingest(r.Context(), collect.Request{
		Event:     evt,
		Origin:    r.Header.Get("Origin"),
		Referer:   r.Header.Get("Referer"),
		ClientIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.count(httputil.StatusForCode(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	h.count(http.StatusAccepted)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *CollectHandler) count(status int) {
	if h.metrics != nil {
		h.metrics.CollectRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
