// Package search builds a BM25 index over skill metadata and answers ranked,
// filtered queries against a SkillIndex.
package search

import (
	"slices"
	"strings"

	"github.com/joshrotenberg/skillet/internal/bm25"
	"github.com/joshrotenberg/skillet/internal/models"
)

// DefaultTopK is the limit transports apply when a request names none.
const DefaultTopK = 100

// Wildcard lists every skill in index order.
const Wildcard = bm25.Wildcard

// Field names and their weights.
const (
	FieldOwner       = "owner"
	FieldName        = "name"
	FieldDescription = "description"
	FieldTrigger     = "trigger"
	FieldCategories  = "categories"
	FieldTags        = "tags"
	FieldBody        = "body"
)

var fieldWeights = map[string]float64{
	FieldName:        3.0,
	FieldOwner:       1.0,
	FieldDescription: 1.5,
	FieldTrigger:     1.5,
	FieldCategories:  1.0,
	FieldTags:        2.0,
	FieldBody:        0.3,
}

// Filters narrow ranked results. Matching is case-insensitive; empty fields
// match everything.
type Filters struct {
	Category     string
	Tag          string
	VerifiedWith string
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Category == "" && f.Tag == "" && f.VerifiedWith == ""
}

func (f Filters) match(meta *models.SkillMetadata) bool {
	return containsFold(meta.Categories(), f.Category) &&
		containsFold(meta.Tags(), f.Tag) &&
		containsFold(meta.VerifiedWith(), f.VerifiedWith)
}

func containsFold(values []string, want string) bool {
	if want == "" {
		return true
	}
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, want) })
}

// Hit is one ranked skill.
type Hit struct {
	Owner string
	Name  string
	Score float64
	Entry *models.SkillEntry
}

// Key returns the hit's skill key.
func (h Hit) Key() models.Key {
	return models.Key{Owner: h.Owner, Name: h.Name}
}

// SkillSearch pairs a BM25 index with the SkillIndex it was built from.
type SkillSearch struct {
	engine *bm25.Index
	index  *models.SkillIndex
}

// Build indexes one document per skill, taken from its latest live version.
// Skills whose versions are all yanked are not searchable.
func Build(idx *models.SkillIndex) *SkillSearch {
	if idx == nil {
		idx = models.NewSkillIndex()
	}
	docs := make([]bm25.Document, 0, len(idx.Skills))
	for _, e := range idx.Entries() {
		v, err := e.Latest()
		if err != nil {
			continue
		}
		info := v.Metadata.Skill
		docs = append(docs, bm25.Document{
			ID: e.Key().String(),
			Fields: map[string]string{
				FieldOwner:       e.Owner,
				FieldName:        e.Name,
				FieldDescription: info.Description,
				FieldTrigger:     info.Trigger,
				FieldCategories:  strings.Join(v.Metadata.Categories(), " "),
				FieldTags:        strings.Join(v.Metadata.Tags(), " "),
				FieldBody:        v.Body,
			},
		})
	}

	opts := bm25.DefaultOptions()
	opts.FieldWeights = fieldWeights
	return &SkillSearch{engine: bm25.Build(docs, opts), index: idx}
}

// Len returns the number of searchable skills.
func (s *SkillSearch) Len() int { return s.engine.Len() }

// Search ranks skills for query. Filters are applied after ranking and
// never reorder results; topK bounds the filtered result and <= 0 means
// unbounded. Ids that no longer resolve in the index are dropped.
func (s *SkillSearch) Search(query string, f Filters, topK int) []Hit {
	rankK := max(topK, 0)
	if !f.IsZero() {
		rankK = 0
	}

	var hits []Hit
	for _, r := range s.engine.Search(query, rankK) {
		key, err := models.ParseKey(r.ID)
		if err != nil {
			continue
		}
		entry, ok := s.index.Skills[key]
		if !ok {
			continue
		}
		if !f.IsZero() {
			v, err := entry.Latest()
			if err != nil || !f.match(&v.Metadata) {
				continue
			}
		}
		hits = append(hits, Hit{Owner: key.Owner, Name: key.Name, Score: r.Score, Entry: entry})
		if topK > 0 && len(hits) == topK {
			break
		}
	}
	return hits
}
