package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joshrotenberg/skillet/internal/search"
	"github.com/joshrotenberg/skillet/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	reg *service.Registry
}

// NewHandler creates a new Handler.
func NewHandler(reg *service.Registry) *Handler {
	return &Handler{reg: reg}
}

func skillParams(r *http.Request) (owner, name, version string) {
	return chi.URLParam(r, "owner"), chi.URLParam(r, "name"), r.URL.Query().Get("version")
}

// filePath extracts the auxiliary file path after /files/.
// Supports encoded slashes (e.g. scripts%2Frun.sh).
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Search handles GET /skills/search.
//
//	@Summary		Ranked search across skills
//	@Tags			skills
//	@Produce		json
//	@Param			q				query		string	false	"Search query, * or empty lists all"
//	@Param			category		query		string	false	"Filter by category"
//	@Param			tag				query		string	false	"Filter by tag"
//	@Param			verified_with	query		string	false	"Filter by verified model"
//	@Param			limit			query		int		false	"Max results (default 100, 0 for all)"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := search.DefaultTopK
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	f := search.Filters{
		Category:     q.Get("category"),
		Tag:          q.Get("tag"),
		VerifiedWith: q.Get("verified_with"),
	}
	results := h.reg.Search(r.Context(), q.Get("q"), f, limit)
	writeJSON(w, http.StatusOK, SearchResponse{Query: q.Get("q"), Results: results, Total: len(results)})
}

// ListByOwner handles GET /skills/{owner}.
//
//	@Summary		List the skills of one owner
//	@Tags			skills
//	@Produce		json
//	@Param			owner	path		string	true	"Owner"
//	@Success		200		{object}	SkillListResponse
//	@Security		BearerAuth
//	@Router			/skills/{owner} [get]
func (h *Handler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	skills := h.reg.ListByOwner(r.Context(), owner)
	writeJSON(w, http.StatusOK, SkillListResponse{Owner: owner, Skills: skills})
}

// GetSkill handles GET /skills/{owner}/{name}.
//
//	@Summary		Get skill metadata and version history
//	@Tags			skills
//	@Produce		json
//	@Param			owner	path		string	true	"Owner"
//	@Param			name	path		string	true	"Skill name"
//	@Param			version	query		string	false	"Version, latest when empty"
//	@Success		200		{object}	SkillDetail
//	@Failure		404		{object}	errResponse
//	@Failure		410		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/{owner}/{name} [get]
func (h *Handler) GetSkill(w http.ResponseWriter, r *http.Request) {
	owner, name, version := skillParams(r)
	d, err := h.reg.Lookup(r.Context(), owner, name, version)
	if err != nil {
		writeError(w, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetContent handles GET /skills/{owner}/{name}/content and returns the raw
// SKILL.md body. Historical versions without content answer 410 Gone.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	owner, name, version := skillParams(r)
	body, err := h.reg.Content(r.Context(), owner, name, version)
	if err != nil {
		writeError(w, "content", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// GetFile handles GET /skills/{owner}/{name}/files/*.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	owner, name, version := skillParams(r)
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("file path is required"))
		return
	}
	f, err := h.reg.File(r.Context(), owner, name, version, path)
	if err != nil {
		writeError(w, "file", err)
		return
	}
	w.Header().Set("Content-Type", f.MIMEType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(f.Content))
}

// VerifyIntegrity handles GET /skills/{owner}/{name}/integrity.
//
//	@Summary		Re-verify a skill version against its manifest
//	@Tags			integrity
//	@Produce		json
//	@Success		200	{object}	IntegrityReport
//	@Failure		404	{object}	errResponse
//	@Failure		410	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/{owner}/{name}/integrity [get]
func (h *Handler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	owner, name, version := skillParams(r)
	rep, err := h.reg.VerifyIntegrity(r.Context(), owner, name, version)
	if err != nil {
		writeError(w, "verify integrity", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: h.reg.ListCategories(r.Context())})
}

// ListOwners handles GET /owners.
func (h *Handler) ListOwners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OwnersResponse{Owners: h.reg.ListOwners(r.Context())})
}

// Refresh handles POST /refresh. With ?source= only that source is pulled.
//
//	@Summary		Pull sources and rebuild the index when they changed
//	@Tags			operations
//	@Produce		json
//	@Param			source	query		string	false	"Source id"
//	@Success		200		{object}	Stats
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	RefreshFailedResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reg.Refresh(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, RefreshFailedResponse{Error: err.Error(), Stats: stats})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.Stats(r.Context()))
}
