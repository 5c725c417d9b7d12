package api

import (
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/registry"
	"github.com/joshrotenberg/skillet/internal/service"
	"github.com/joshrotenberg/skillet/internal/trust"
)

// SkillDetail is the skill response type (aliased from the domain layer).
type SkillDetail = service.SkillDetail

// IntegrityReport is the integrity response type.
type IntegrityReport = service.IntegrityReport

// TrustReport is the trust status response type.
type TrustReport = service.TrustReport

// Stats is the snapshot summary response type.
type Stats = service.Stats

// Comparison is the side-by-side response type.
type Comparison = service.Comparison

// Validation is the validate response type.
type Validation = registry.Validation

// ValidateRequest carries a skill directory as path to file content, e.g.
// "SKILL.md", "skill.toml" and "scripts/run.sh".
type ValidateRequest struct {
	Files map[string]string `json:"files" validate:"required"`
}

// SearchResponse wraps ranked results.
type SearchResponse struct {
	Query   string                 `json:"query" example:"git"`
	Results []service.SearchResult `json:"results" validate:"required"`
	Total   int                    `json:"total" example:"3" validate:"required"`
}

// SkillListResponse wraps an owner listing.
type SkillListResponse struct {
	Owner  string                `json:"owner" example:"acme" validate:"required"`
	Skills []models.SkillSummary `json:"skills" validate:"required"`
}

// CategoriesResponse wraps category counts.
type CategoriesResponse struct {
	Categories []models.CategoryCount `json:"categories" validate:"required"`
}

// OwnersResponse wraps owner counts.
type OwnersResponse struct {
	Owners []service.OwnerCount `json:"owners" validate:"required"`
}

// TrustRegistryRequest is the request body for trusting a registry.
type TrustRegistryRequest struct {
	Registry string `json:"registry" example:"https://github.com/acme/skills.git" validate:"required"`
	Note     string `json:"note,omitempty" example:"team registry"`
}

// TrustedRegistriesResponse wraps trusted registries.
type TrustedRegistriesResponse struct {
	Registries []trust.TrustedRegistry `json:"registries" validate:"required"`
}

// AuditResponse wraps audit rows.
type AuditResponse struct {
	Results  []trust.AuditResult `json:"results" validate:"required"`
	Problems bool                `json:"problems"`
}

// RefreshFailedResponse reports a failed refresh with the snapshot still
// being served.
type RefreshFailedResponse struct {
	Error string `json:"error" validate:"required"`
	Stats Stats  `json:"stats"`
}
