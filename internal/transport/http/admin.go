package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pixelgate/internal/admin"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/httputil"
)

// AdminHandler exposes client and domain management. The API is expected to
// sit behind network-level access control; it carries no authentication of
// its own.
type AdminHandler struct {
	svc *admin.Service
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/clients", h.CreateClient)
	r.Route("/clients/{client_id}", func(r chi.Router) {
		r.Get("/", h.GetClient)
		r.Delete("/", h.DeleteClient)
		r.Patch("/status", h.SetStatus)

		r.Get("/domains", h.ListDomains)
		r.Post("/domains", h.AddDomain)
		r.Delete("/domains/{domain}", h.RemoveDomain)
		r.Put("/domains/{domain}/primary", h.SetPrimaryDomain)
	})
}

func (h *AdminHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var in admin.CreateClientInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.svc.CreateClient(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *AdminHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetClient(r.Context(), chi.URLParam(r, "client_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteClient(r.Context(), chi.URLParam(r, "client_id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.IsActive == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "is_active is required"))
		return
	}

	rec, err := h.svc.SetClientActive(r.Context(), chi.URLParam(r, "client_id"), *in.IsActive)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.svc.ListDomains(r.Context(), chi.URLParam(r, "client_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (h *AdminHandler) AddDomain(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Domain    string `json:"domain"`
		IsPrimary bool   `json:"is_primary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.svc.AddDomain(r.Context(), chi.URLParam(r, "client_id"), in.Domain, in.IsPrimary)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *AdminHandler) RemoveDomain(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveDomain(r.Context(), chi.URLParam(r, "client_id"), chi.URLParam(r, "domain"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) SetPrimaryDomain(w http.ResponseWriter, r *http.Request) {
	err := h.svc.SetPrimaryDomain(r.Context(), chi.URLParam(r, "client_id"), chi.URLParam(r, "domain"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
