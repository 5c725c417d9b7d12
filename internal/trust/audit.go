package trust

import (
	"sort"

	"github.com/joshrotenberg/skillet/internal/models"
)

// AuditStatus is the outcome of comparing one skill against its pin.
type AuditStatus string

const (
	AuditOK       AuditStatus = "ok"
	AuditModified AuditStatus = "modified"
	AuditUnpinned AuditStatus = "unpinned"
	AuditMissing  AuditStatus = "missing"
)

// AuditResult is one row of an audit.
type AuditResult struct {
	Owner       string      `json:"owner"`
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Source      string      `json:"source,omitempty"`
	Status      AuditStatus `json:"status"`
	PinnedHash  string      `json:"pinned_hash,omitempty"`
	CurrentHash string      `json:"current_hash,omitempty"`
}

// AuditFilter restricts an audit to one owner and optionally one name.
type AuditFilter struct {
	Owner string
	Name  string
}

func (f AuditFilter) match(owner, name string) bool {
	return (f.Owner == "" || f.Owner == owner) && (f.Name == "" || f.Name == name)
}

// Audit compares every pin against the latest live version in idx. Pinned
// skills that are gone from the index (or fully yanked) are missing. Indexed
// skills without a pin are reported as unpinned. Results are ordered by
// owner, then name.
func Audit(pins []PinnedSkill, idx *models.SkillIndex, f AuditFilter) []AuditResult {
	byKey := make(map[models.Key]PinnedSkill, len(pins))
	for _, p := range pins {
		byKey[models.Key{Owner: p.Owner, Name: p.Name}] = p
	}

	seen := make(map[models.Key]struct{}, len(byKey)+len(idx.Skills))
	var keys []models.Key
	for _, k := range append(idx.Keys(), pinKeys(pins)...) {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Owner != keys[j].Owner {
			return keys[i].Owner < keys[j].Owner
		}
		return keys[i].Name < keys[j].Name
	})

	var out []AuditResult
	for _, k := range keys {
		if !f.match(k.Owner, k.Name) {
			continue
		}
		r := AuditResult{Owner: k.Owner, Name: k.Name}

		var live *models.SkillVersion
		if e, ok := idx.Skills[k]; ok {
			r.Source = e.Source
			if v, err := e.Latest(); err == nil {
				live = v
				r.Version = v.Version
				r.CurrentHash = v.ContentHash
			}
		}

		pin, pinned := byKey[k]
		switch {
		case !pinned:
			r.Status = AuditUnpinned
		case live == nil:
			r.Status = AuditMissing
			r.Version = pin.Version
			r.PinnedHash = pin.ContentHash
		case live.ContentHash == pin.ContentHash:
			r.Status = AuditOK
			r.PinnedHash = pin.ContentHash
		default:
			r.Status = AuditModified
			r.PinnedHash = pin.ContentHash
		}
		out = append(out, r)
	}
	return out
}

func pinKeys(pins []PinnedSkill) []models.Key {
	out := make([]models.Key, len(pins))
	for i, p := range pins {
		out[i] = models.Key{Owner: p.Owner, Name: p.Name}
	}
	return out
}

// HasProblems reports whether any result is modified or missing.
func HasProblems(results []AuditResult) bool {
	for _, r := range results {
		if r.Status == AuditModified || r.Status == AuditMissing {
			return true
		}
	}
	return false
}
