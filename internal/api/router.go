package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joshrotenberg/skillet/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(reg *service.Registry, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(reg)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Skills. Static segments win over the owner parameter.
	r.Get("/skills/search", h.Search)
	r.Get("/skills/compare", h.CompareSkills)
	r.Post("/skills/validate", h.ValidateSkill)
	r.Get("/skills/{owner}", h.ListByOwner)
	r.Route("/skills/{owner}/{name}", func(r chi.Router) {
		r.Get("/", h.GetSkill)
		r.Get("/content", h.GetContent)
		r.Get("/files/*", h.GetFile)
		r.Get("/integrity", h.VerifyIntegrity)
		r.Get("/trust", h.TrustStatus)
		r.Put("/pin", h.Pin)
		r.Delete("/pin", h.Unpin)
	})

	// Listings.
	r.Get("/categories", h.ListCategories)
	r.Get("/owners", h.ListOwners)

	// Trust.
	r.Get("/trust/registries", h.ListTrusted)
	r.Post("/trust/registries", h.TrustRegistry)
	r.Delete("/trust/registries", h.UntrustRegistry)
	r.Get("/trust/audit", h.Audit)

	// Operations.
	r.Post("/refresh", h.Refresh)
	r.Get("/stats", h.Stats)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
