package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joshrotenberg/skillet/internal/trust"
)

// TrustStatus handles GET /skills/{owner}/{name}/trust.
//
//	@Summary		Classify a skill against trusted registries and pins
//	@Tags			trust
//	@Produce		json
//	@Success		200	{object}	TrustReport
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/{owner}/{name}/trust [get]
func (h *Handler) TrustStatus(w http.ResponseWriter, r *http.Request) {
	owner, name, _ := skillParams(r)
	rep, err := h.reg.TrustStatus(r.Context(), owner, name)
	if err != nil {
		writeError(w, "trust status", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Pin handles PUT /skills/{owner}/{name}/pin and pins the latest version.
func (h *Handler) Pin(w http.ResponseWriter, r *http.Request) {
	owner, name, _ := skillParams(r)
	pin, err := h.reg.Pin(r.Context(), owner, name)
	if err != nil {
		writeError(w, "pin", err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

// Unpin handles DELETE /skills/{owner}/{name}/pin.
func (h *Handler) Unpin(w http.ResponseWriter, r *http.Request) {
	owner, name, _ := skillParams(r)
	if err := h.reg.Unpin(r.Context(), owner, name); err != nil {
		writeError(w, "unpin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTrusted handles GET /trust/registries.
func (h *Handler) ListTrusted(w http.ResponseWriter, r *http.Request) {
	regs, err := h.reg.TrustedSources(r.Context())
	if err != nil {
		writeError(w, "list trusted", err)
		return
	}
	writeJSON(w, http.StatusOK, TrustedRegistriesResponse{Registries: regs})
}

// TrustRegistry handles POST /trust/registries.
//
//	@Summary		Mark a registry as trusted
//	@Tags			trust
//	@Accept			json
//	@Param			body	body	TrustRegistryRequest	true	"Registry to trust"
//	@Success		201
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trust/registries [post]
func (h *Handler) TrustRegistry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req TrustRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Registry) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("registry is required"))
		return
	}
	if err := h.reg.TrustSource(r.Context(), req.Registry, req.Note); err != nil {
		writeError(w, "trust registry", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// UntrustRegistry handles DELETE /trust/registries?registry=. Registry ids
// are URLs, so they travel as a query parameter.
func (h *Handler) UntrustRegistry(w http.ResponseWriter, r *http.Request) {
	registry := r.URL.Query().Get("registry")
	if registry == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'registry' is required"))
		return
	}
	if err := h.reg.UntrustSource(r.Context(), registry); err != nil {
		writeError(w, "untrust registry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audit handles GET /trust/audit.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.reg.Audit(r.Context(), trust.AuditFilter{Owner: q.Get("owner"), Name: q.Get("name")})
	if err != nil {
		writeError(w, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Results: results, Problems: trust.HasProblems(results)})
}
