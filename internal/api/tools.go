package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/registry"
)

// CompareSkills handles GET /skills/compare?a=owner/name&b=owner/name.
//
//	@Summary		Compare the latest versions of two skills
//	@Tags			skills
//	@Produce		json
//	@Param			a	query		string	true	"First skill, owner/name"
//	@Param			b	query		string	true	"Second skill, owner/name"
//	@Success		200	{object}	Comparison
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/compare [get]
func (h *Handler) CompareSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := models.ParseKey(q.Get("a"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("a: "+err.Error()))
		return
	}
	b, err := models.ParseKey(q.Get("b"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("b: "+err.Error()))
		return
	}
	c, err := h.reg.Compare(r.Context(), a, b)
	if err != nil {
		writeError(w, "compare", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ValidateSkill handles POST /skills/validate. The body carries the skill
// directory as path to content; nothing is published.
//
//	@Summary		Validate a skill directory before publishing
//	@Tags			skills
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ValidateRequest	true	"Skill files"
//	@Success		200		{object}	Validation
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/skills/validate [post]
func (h *Handler) ValidateSkill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("files is required"))
		return
	}
	res, err := registry.ValidateFiles(req.Files, slog.Default())
	if err != nil {
		writeError(w, "validate", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
