// Package models defines the domain types for the skill registry.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joshrotenberg/skillet/internal/apperr"
)

// Key identifies a skill by owner and name. Both parts are case-sensitive.
type Key struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns the "owner/name" form of the key.
func (k Key) String() string {
	return k.Owner + "/" + k.Name
}

// ParseKey splits an "owner/name" identifier.
func ParseKey(id string) (Key, error) {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Key{}, fmt.Errorf("invalid skill id %q: expected owner/name", id)
	}
	return Key{Owner: owner, Name: name}, nil
}

// SkillIndex maps skill keys to entries and tracks category counts.
type SkillIndex struct {
	Skills     map[Key]*SkillEntry `json:"-"`
	Categories map[string]int      `json:"categories"`
}

// NewSkillIndex returns an empty index.
func NewSkillIndex() *SkillIndex {
	return &SkillIndex{
		Skills:     make(map[Key]*SkillEntry),
		Categories: make(map[string]int),
	}
}

// Get returns the entry for owner/name, or apperr.ErrNotFound.
func (idx *SkillIndex) Get(owner, name string) (*SkillEntry, error) {
	e, ok := idx.Skills[Key{Owner: owner, Name: name}]
	if !ok {
		return nil, fmt.Errorf("skill %s/%s: %w", owner, name, apperr.ErrNotFound)
	}
	return e, nil
}

// Keys returns every key sorted by owner, then name. This is the index order
// used for wildcard listings and document insertion.
func (idx *SkillIndex) Keys() []Key {
	keys := make([]Key, 0, len(idx.Skills))
	for k := range idx.Skills {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Owner != keys[j].Owner {
			return keys[i].Owner < keys[j].Owner
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Entries returns entries in index order.
func (idx *SkillIndex) Entries() []*SkillEntry {
	keys := idx.Keys()
	out := make([]*SkillEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, idx.Skills[k])
	}
	return out
}

// RecountCategories rebuilds category counts from each entry's latest
// non-yanked version.
func (idx *SkillIndex) RecountCategories() {
	counts := make(map[string]int)
	for _, e := range idx.Skills {
		v, err := e.Latest()
		if err != nil {
			continue
		}
		seen := make(map[string]struct{})
		for _, c := range v.Metadata.Categories() {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			counts[c]++
		}
	}
	idx.Categories = counts
}

// CategoryCount is one row of the ordered category listing.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SortedCategories returns category counts ordered by name.
func (idx *SkillIndex) SortedCategories() []CategoryCount {
	out := make([]CategoryCount, 0, len(idx.Categories))
	for name, n := range idx.Categories {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SkillEntry is one skill with its ordered version history (oldest first).
type SkillEntry struct {
	Owner    string         `json:"owner"`
	Name     string         `json:"name"`
	Source   string         `json:"source"`
	Versions []SkillVersion `json:"versions"`
}

// Key returns the entry's key.
func (e *SkillEntry) Key() Key {
	return Key{Owner: e.Owner, Name: e.Name}
}

// Latest returns the last version that is not yanked.
func (e *SkillEntry) Latest() (*SkillVersion, error) {
	for i := len(e.Versions) - 1; i >= 0; i-- {
		if !e.Versions[i].Yanked {
			return &e.Versions[i], nil
		}
	}
	return nil, fmt.Errorf("skill %s/%s: %w", e.Owner, e.Name, apperr.ErrAllYanked)
}

// Version returns a specific version, or the latest when v is empty.
func (e *SkillEntry) Version(v string) (*SkillVersion, error) {
	if v == "" {
		return e.Latest()
	}
	for i := range e.Versions {
		if e.Versions[i].Version == v {
			return &e.Versions[i], nil
		}
	}
	return nil, fmt.Errorf("skill %s/%s version %s: %w", e.Owner, e.Name, v, apperr.ErrNotFound)
}

// IntegrityState records the outcome of manifest verification at load time.
type IntegrityState int

const (
	IntegrityNotChecked IntegrityState = iota
	IntegrityVerified
	IntegrityFailed
)

func (s IntegrityState) String() string {
	switch s {
	case IntegrityVerified:
		return "verified"
	case IntegrityFailed:
		return "failed"
	default:
		return "not_checked"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s IntegrityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *IntegrityState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "verified":
		*s = IntegrityVerified
	case "failed":
		*s = IntegrityFailed
	case "not_checked", "":
		*s = IntegrityNotChecked
	default:
		return fmt.Errorf("unknown integrity state %q", b)
	}
	return nil
}

// SkillVersion is one published version of a skill. Historical versions
// loaded from a version manifest have HasContent=false and carry no body
// or files.
type SkillVersion struct {
	Version     string               `json:"version"`
	Metadata    SkillMetadata        `json:"metadata"`
	Body        string               `json:"body,omitempty"`
	MetadataRaw string               `json:"metadata_raw,omitempty"`
	Yanked      bool                 `json:"yanked"`
	Files       map[string]SkillFile `json:"files,omitempty"`
	Published   *time.Time           `json:"published,omitempty"`
	HasContent  bool                 `json:"has_content"`
	ContentHash string               `json:"content_hash,omitempty"`
	Integrity   IntegrityState       `json:"integrity"`
	// Manifest is the raw MANIFEST.sha256 seen at load, if any.
	Manifest string `json:"manifest,omitempty"`
}

// Content returns the body, or apperr.ErrContentNotRetained for placeholder
// versions.
func (v *SkillVersion) Content() (string, error) {
	if !v.HasContent {
		return "", fmt.Errorf("version %s: %w", v.Version, apperr.ErrContentNotRetained)
	}
	return v.Body, nil
}

// FilePaths returns auxiliary file paths in sorted order.
func (v *SkillVersion) FilePaths() []string {
	out := make([]string, 0, len(v.Files))
	for p := range v.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SkillFile is an auxiliary text file shipped with a skill.
type SkillFile struct {
	Content  string `json:"content"`
	MIMEType string `json:"mime_type"`
}

// SkillMetadata is the parsed skill.toml document.
type SkillMetadata struct {
	Skill SkillInfo `toml:"skill" json:"skill"`
}

// SkillInfo holds the [skill] table.
type SkillInfo struct {
	Name           string          `toml:"name" json:"name"`
	Owner          string          `toml:"owner" json:"owner"`
	Version        string          `toml:"version" json:"version"`
	Description    string          `toml:"description" json:"description"`
	Trigger        string          `toml:"trigger,omitempty" json:"trigger,omitempty"`
	License        string          `toml:"license,omitempty" json:"license,omitempty"`
	Author         *Author         `toml:"author,omitempty" json:"author,omitempty"`
	Classification *Classification `toml:"classification,omitempty" json:"classification,omitempty"`
	Compatibility  *Compatibility  `toml:"compatibility,omitempty" json:"compatibility,omitempty"`
}

// Author identifies who wrote a skill.
type Author struct {
	Name   string `toml:"name,omitempty" json:"name,omitempty"`
	GitHub string `toml:"github,omitempty" json:"github,omitempty"`
}

// Classification holds categories and tags.
type Classification struct {
	Categories []string `toml:"categories" json:"categories"`
	Tags       []string `toml:"tags" json:"tags"`
}

// Compatibility gates agent capability matching. VerifiedWith is advisory.
type Compatibility struct {
	RequiresToolUse    *bool    `toml:"requires_tool_use,omitempty" json:"requires_tool_use,omitempty"`
	RequiresVision     *bool    `toml:"requires_vision,omitempty" json:"requires_vision,omitempty"`
	MinContextTokens   *uint64  `toml:"min_context_tokens,omitempty" json:"min_context_tokens,omitempty"`
	RequiredTools      []string `toml:"required_tools,omitempty" json:"required_tools,omitempty"`
	RequiredMCPServers []string `toml:"required_mcp_servers,omitempty" json:"required_mcp_servers,omitempty"`
	VerifiedWith       []string `toml:"verified_with,omitempty" json:"verified_with,omitempty"`
}

// Categories returns the classification categories, or nil.
func (m *SkillMetadata) Categories() []string {
	if m.Skill.Classification == nil {
		return nil
	}
	return m.Skill.Classification.Categories
}

// Tags returns the classification tags, or nil.
func (m *SkillMetadata) Tags() []string {
	if m.Skill.Classification == nil {
		return nil
	}
	return m.Skill.Classification.Tags
}

// VerifiedWith returns the advisory list of models, or nil.
func (m *SkillMetadata) VerifiedWith() []string {
	if m.Skill.Compatibility == nil {
		return nil
	}
	return m.Skill.Compatibility.VerifiedWith
}

// SkillSummary is the lightweight view returned by listings and search.
type SkillSummary struct {
	Owner        string   `json:"owner"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Trigger      string   `json:"trigger,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	VerifiedWith []string `json:"verified_with,omitempty"`
	Files        []string `json:"files,omitempty"`
	Source       string   `json:"source"`
	ContentHash  string   `json:"content_hash,omitempty"`
	Integrity    string   `json:"integrity"`
}

// Summarize builds a summary from the entry's latest version.
func Summarize(e *SkillEntry) (SkillSummary, error) {
	v, err := e.Latest()
	if err != nil {
		return SkillSummary{}, err
	}
	cats := v.Metadata.Categories()
	if cats == nil {
		cats = []string{}
	}
	tags := v.Metadata.Tags()
	if tags == nil {
		tags = []string{}
	}
	return SkillSummary{
		Owner:        e.Owner,
		Name:         e.Name,
		Version:      v.Version,
		Description:  v.Metadata.Skill.Description,
		Trigger:      v.Metadata.Skill.Trigger,
		Categories:   cats,
		Tags:         tags,
		VerifiedWith: v.Metadata.VerifiedWith(),
		Files:        v.FilePaths(),
		Source:       e.Source,
		ContentHash:  v.ContentHash,
		Integrity:    v.Integrity.String(),
	}, nil
}
