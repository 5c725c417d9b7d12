// Package service is the query facade shared by the HTTP API, the MCP
// server and the CLI. Every call reads one published snapshot.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/integrity"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/refresh"
	"github.com/joshrotenberg/skillet/internal/search"
	"github.com/joshrotenberg/skillet/internal/trust"
)

// ErrTrustDisabled is returned by trust operations when no store is wired.
var ErrTrustDisabled = errors.New("trust store not configured")

// SearchResult is a summary with its relevance score.
type SearchResult struct {
	models.SkillSummary
	Score float64 `json:"score"`
}

// VersionInfo is one row of a skill's version history.
type VersionInfo struct {
	Version    string     `json:"version"`
	Yanked     bool       `json:"yanked"`
	HasContent bool       `json:"has_content"`
	Published  *time.Time `json:"published,omitempty"`
}

// SkillDetail is the full view of one version plus the history it sits in.
type SkillDetail struct {
	Owner       string               `json:"owner"`
	Name        string               `json:"name"`
	Source      string               `json:"source"`
	Version     string               `json:"version"`
	Latest      bool                 `json:"latest"`
	Yanked      bool                 `json:"yanked"`
	HasContent  bool                 `json:"has_content"`
	Published   *time.Time           `json:"published,omitempty"`
	Metadata    models.SkillMetadata `json:"metadata"`
	ContentHash string               `json:"content_hash,omitempty"`
	Integrity   string               `json:"integrity"`
	Files       []string             `json:"files"`
	Versions    []VersionInfo        `json:"versions"`
}

// OwnerCount is one row of the owner listing.
type OwnerCount struct {
	Owner  string `json:"owner"`
	Skills int    `json:"skills"`
}

// IntegrityReport is the result of re-verifying a version against the
// manifest recorded at load. Checked is false when the skill ships none.
type IntegrityReport struct {
	Owner       string               `json:"owner"`
	Name        string               `json:"name"`
	Version     string               `json:"version"`
	ContentHash string               `json:"content_hash"`
	Checked     bool                 `json:"checked"`
	OK          bool                 `json:"ok"`
	Mismatches  []integrity.Mismatch `json:"mismatches"`
}

// TrustReport is a trust classification plus the policy decision for it.
type TrustReport struct {
	Owner    string         `json:"owner"`
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Status   trust.Status   `json:"status"`
	Policy   trust.Policy   `json:"policy"`
	Decision trust.Decision `json:"decision"`
}

// Stats summarizes the published snapshot.
type Stats struct {
	Snapshot   string            `json:"snapshot"`
	BuiltAt    time.Time         `json:"built_at"`
	Skills     int               `json:"skills"`
	Owners     int               `json:"owners"`
	Categories int               `json:"categories"`
	Revisions  map[string]string `json:"revisions"`
	Conflicts  int               `json:"conflicts"`
}

// Registry answers queries against the controller's current snapshot and
// consults the trust store on demand.
type Registry struct {
	ctrl   *refresh.Controller
	trust  *trust.Store
	policy trust.Policy
	logger *slog.Logger
}

// New creates a registry facade. store may be nil, in which case trust
// operations return ErrTrustDisabled and content is served unchecked.
func New(ctrl *refresh.Controller, store *trust.Store, policy trust.Policy, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = trust.PolicyWarn
	}
	return &Registry{ctrl: ctrl, trust: store, policy: policy, logger: logger}
}

// Policy returns the configured policy for unknown skills.
func (r *Registry) Policy() trust.Policy { return r.policy }

// Search ranks skills for query. An empty query lists everything and a
// limit <= 0 returns every match.
func (r *Registry) Search(_ context.Context, query string, f search.Filters, limit int) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		query = search.Wildcard
	}
	hits := r.ctrl.Current().Search.Search(query, f, limit)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		sum, err := models.Summarize(h.Entry)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{SkillSummary: sum, Score: h.Score})
	}
	return out
}

// Lookup returns one version of owner/name; an empty version means latest.
// Metadata of historical versions is available even when their content is
// not.
func (r *Registry) Lookup(_ context.Context, owner, name, version string) (*SkillDetail, error) {
	entry, v, err := r.resolve(owner, name, version)
	if err != nil {
		return nil, err
	}
	latest, _ := entry.Latest()
	d := &SkillDetail{
		Owner:       entry.Owner,
		Name:        entry.Name,
		Source:      entry.Source,
		Version:     v.Version,
		Latest:      latest == v,
		Yanked:      v.Yanked,
		HasContent:  v.HasContent,
		Published:   v.Published,
		Metadata:    v.Metadata,
		ContentHash: v.ContentHash,
		Integrity:   v.Integrity.String(),
		Files:       v.FilePaths(),
		Versions:    make([]VersionInfo, 0, len(entry.Versions)),
	}
	for _, hv := range entry.Versions {
		d.Versions = append(d.Versions, VersionInfo{
			Version:    hv.Version,
			Yanked:     hv.Yanked,
			HasContent: hv.HasContent,
			Published:  hv.Published,
		})
	}
	return d, nil
}

// Content returns the SKILL.md body. Historical versions without content
// fail with apperr.ErrContentNotRetained. Under the block policy, skills
// that are neither trusted nor pinned fail with apperr.ErrBlocked.
func (r *Registry) Content(ctx context.Context, owner, name, version string) (string, error) {
	entry, v, err := r.resolve(owner, name, version)
	if err != nil {
		return "", err
	}
	body, err := v.Content()
	if err != nil {
		return "", err
	}
	if err := r.enforce(ctx, entry, v); err != nil {
		return "", err
	}
	return body, nil
}

// File returns one auxiliary file of a version.
func (r *Registry) File(ctx context.Context, owner, name, version, path string) (models.SkillFile, error) {
	entry, v, err := r.resolve(owner, name, version)
	if err != nil {
		return models.SkillFile{}, err
	}
	if !v.HasContent {
		return models.SkillFile{}, fmt.Errorf("version %s: %w", v.Version, apperr.ErrContentNotRetained)
	}
	f, ok := v.Files[strings.TrimPrefix(path, "/")]
	if !ok {
		return models.SkillFile{}, fmt.Errorf("file %s in %s/%s: %w", path, owner, name, apperr.ErrNotFound)
	}
	if err := r.enforce(ctx, entry, v); err != nil {
		return models.SkillFile{}, err
	}
	return f, nil
}

// ListCategories returns category counts ordered by name.
func (r *Registry) ListCategories(context.Context) []models.CategoryCount {
	return r.ctrl.Current().Index.SortedCategories()
}

// ListByOwner returns summaries of every live skill of owner, ordered by
// name. An unknown owner yields an empty list.
func (r *Registry) ListByOwner(_ context.Context, owner string) []models.SkillSummary {
	out := []models.SkillSummary{}
	for _, e := range r.ctrl.Current().Index.Entries() {
		if e.Owner != owner {
			continue
		}
		if sum, err := models.Summarize(e); err == nil {
			out = append(out, sum)
		}
	}
	return out
}

// ListOwners returns every owner with its skill count.
func (r *Registry) ListOwners(context.Context) []OwnerCount {
	counts := make(map[string]int)
	for k := range r.ctrl.Current().Index.Skills {
		counts[k.Owner]++
	}
	out := make([]OwnerCount, 0, len(counts))
	for owner, n := range counts {
		out = append(out, OwnerCount{Owner: owner, Skills: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// VerifyIntegrity recomputes the content hashes of a version and compares
// them with its manifest. Mismatches are data, not errors.
func (r *Registry) VerifyIntegrity(_ context.Context, owner, name, version string) (*IntegrityReport, error) {
	entry, v, err := r.resolve(owner, name, version)
	if err != nil {
		return nil, err
	}
	if !v.HasContent {
		return nil, fmt.Errorf("version %s: %w", v.Version, apperr.ErrContentNotRetained)
	}
	computed := integrity.Compute(integrity.Files{Body: v.Body, Metadata: v.MetadataRaw, Extra: v.Files})
	rep := &IntegrityReport{
		Owner:       entry.Owner,
		Name:        entry.Name,
		Version:     v.Version,
		ContentHash: computed.Composite,
		Mismatches:  []integrity.Mismatch{},
	}
	if v.Manifest == "" {
		return rep, nil
	}
	expected, err := integrity.ParseManifest(v.Manifest)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", owner, name, err)
	}
	rep.Checked = true
	if ms := integrity.Verify(computed, expected); len(ms) > 0 {
		rep.Mismatches = ms
	}
	rep.OK = len(rep.Mismatches) == 0
	return rep, nil
}

// TrustStatus classifies the latest version of owner/name.
func (r *Registry) TrustStatus(_ context.Context, owner, name string) (*TrustReport, error) {
	if r.trust == nil {
		return nil, ErrTrustDisabled
	}
	entry, v, err := r.resolve(owner, name, "")
	if err != nil {
		return nil, err
	}
	st, err := r.trust.Check(entry.Source, entry.Owner, entry.Name, v.ContentHash)
	if err != nil {
		return nil, err
	}
	return &TrustReport{
		Owner:    entry.Owner,
		Name:     entry.Name,
		Version:  v.Version,
		Status:   st,
		Policy:   r.policy,
		Decision: r.policy.Decide(st),
	}, nil
}

// Pin records the latest version's content hash of owner/name.
func (r *Registry) Pin(_ context.Context, owner, name string) (trust.PinnedSkill, error) {
	if r.trust == nil {
		return trust.PinnedSkill{}, ErrTrustDisabled
	}
	entry, v, err := r.resolve(owner, name, "")
	if err != nil {
		return trust.PinnedSkill{}, err
	}
	return r.trust.Pin(trust.PinnedSkill{
		Owner:       entry.Owner,
		Name:        entry.Name,
		Version:     v.Version,
		Registry:    entry.Source,
		ContentHash: v.ContentHash,
	})
}

// Unpin removes the pin of owner/name.
func (r *Registry) Unpin(_ context.Context, owner, name string) error {
	if r.trust == nil {
		return ErrTrustDisabled
	}
	return r.trust.Unpin(owner, name)
}

// TrustSource marks a registry id as trusted.
func (r *Registry) TrustSource(_ context.Context, registry, note string) error {
	if r.trust == nil {
		return ErrTrustDisabled
	}
	if strings.TrimSpace(registry) == "" {
		return errors.New("registry is required")
	}
	return r.trust.TrustRegistry(registry, note)
}

// UntrustSource removes a registry from the trusted set.
func (r *Registry) UntrustSource(_ context.Context, registry string) error {
	if r.trust == nil {
		return ErrTrustDisabled
	}
	return r.trust.UntrustRegistry(registry)
}

// TrustedSources lists trusted registries.
func (r *Registry) TrustedSources(context.Context) ([]trust.TrustedRegistry, error) {
	if r.trust == nil {
		return nil, ErrTrustDisabled
	}
	return r.trust.ListRegistries()
}

// Audit compares every pin with the current snapshot.
func (r *Registry) Audit(_ context.Context, f trust.AuditFilter) ([]trust.AuditResult, error) {
	if r.trust == nil {
		return nil, ErrTrustDisabled
	}
	pins, err := r.trust.ListPins()
	if err != nil {
		return nil, err
	}
	return trust.Audit(pins, r.ctrl.Current().Index, f), nil
}

// Refresh reloads one source, or every source when sourceID is empty, and
// returns the stats of whatever snapshot is published afterwards.
func (r *Registry) Refresh(ctx context.Context, sourceID string) (Stats, error) {
	var err error
	if sourceID == "" {
		_, err = r.ctrl.RefreshAll(ctx)
	} else {
		_, err = r.ctrl.Refresh(ctx, sourceID)
	}
	return r.Stats(ctx), err
}

// Stats describes the current snapshot.
func (r *Registry) Stats(context.Context) Stats {
	snap := r.ctrl.Current()
	owners := make(map[string]struct{})
	for k := range snap.Index.Skills {
		owners[k.Owner] = struct{}{}
	}
	return Stats{
		Snapshot:   snap.ID.String(),
		BuiltAt:    snap.BuiltAt,
		Skills:     len(snap.Index.Skills),
		Owners:     len(owners),
		Categories: len(snap.Index.Categories),
		Revisions:  r.ctrl.Revisions(),
		Conflicts:  len(snap.Conflicts),
	}
}

func (r *Registry) resolve(owner, name, version string) (*models.SkillEntry, *models.SkillVersion, error) {
	entry, err := r.ctrl.Current().Index.Get(owner, name)
	if err != nil {
		return nil, nil, err
	}
	v, err := entry.Version(version)
	if err != nil {
		return nil, nil, err
	}
	return entry, v, nil
}

// enforce applies the trust policy before content leaves the registry.
// Prompt cannot be asked over a non-interactive surface and is logged like
// warn.
func (r *Registry) enforce(_ context.Context, entry *models.SkillEntry, v *models.SkillVersion) error {
	if r.trust == nil {
		return nil
	}
	st, err := r.trust.Check(entry.Source, entry.Owner, entry.Name, v.ContentHash)
	if err != nil {
		return err
	}
	switch r.policy.Decide(st) {
	case trust.DecisionBlock:
		return fmt.Errorf("%s/%s: %s: %w", entry.Owner, entry.Name, st.Reason, apperr.ErrBlocked)
	case trust.DecisionWarn, trust.DecisionPrompt:
		r.logger.Warn("trust: serving unverified skill",
			slog.String("skill", entry.Key().String()),
			slog.String("reason", st.Reason))
	}
	return nil
}
