package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/joshrotenberg/skillet/internal/models"
)

// CompareSide is the latest live version of one compared skill.
type CompareSide struct {
	Owner        string   `json:"owner"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	License      string   `json:"license,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	Files        []string `json:"files"`
	ContentBytes int      `json:"content_bytes"`
	ContentHash  string   `json:"content_hash,omitempty"`
}

// SetDiff splits two string sets into shared and one-sided members, each
// sorted.
type SetDiff struct {
	Shared []string `json:"shared"`
	OnlyA  []string `json:"only_a"`
	OnlyB  []string `json:"only_b"`
}

// Comparison is a side-by-side view of two skills. ContentDiff is a unified
// diff of the SKILL.md bodies, empty when they are identical.
type Comparison struct {
	A           CompareSide `json:"a"`
	B           CompareSide `json:"b"`
	Categories  SetDiff     `json:"categories"`
	Tags        SetDiff     `json:"tags"`
	Files       SetDiff     `json:"files"`
	SameContent bool        `json:"same_content"`
	ContentDiff string      `json:"content_diff,omitempty"`
}

// Compare lines up the latest versions of two skills. Either skill missing
// or fully yanked is an error.
func (r *Registry) Compare(_ context.Context, a, b models.Key) (*Comparison, error) {
	idx := r.ctrl.Current().Index
	ea, va, err := latestOf(idx, a)
	if err != nil {
		return nil, err
	}
	eb, vb, err := latestOf(idx, b)
	if err != nil {
		return nil, err
	}

	sa, sb := compareSide(ea, va), compareSide(eb, vb)
	c := &Comparison{
		A:           sa,
		B:           sb,
		Categories:  diffSets(sa.Categories, sb.Categories),
		Tags:        diffSets(sa.Tags, sb.Tags),
		Files:       diffSets(sa.Files, sb.Files),
		SameContent: va.Body == vb.Body,
	}
	if !c.SameContent {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(va.Body),
			B:        difflib.SplitLines(vb.Body),
			FromFile: a.String() + "/SKILL.md",
			ToFile:   b.String() + "/SKILL.md",
			Context:  3,
		})
		if err != nil {
			return nil, fmt.Errorf("diff %s and %s: %w", a, b, err)
		}
		c.ContentDiff = diff
	}
	return c, nil
}

func latestOf(idx *models.SkillIndex, k models.Key) (*models.SkillEntry, *models.SkillVersion, error) {
	e, err := idx.Get(k.Owner, k.Name)
	if err != nil {
		return nil, nil, err
	}
	v, err := e.Latest()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", k, err)
	}
	return e, v, nil
}

func compareSide(e *models.SkillEntry, v *models.SkillVersion) CompareSide {
	return CompareSide{
		Owner:        e.Owner,
		Name:         e.Name,
		Version:      v.Version,
		Description:  v.Metadata.Skill.Description,
		License:      v.Metadata.Skill.License,
		Categories:   sortedCopy(v.Metadata.Categories()),
		Tags:         sortedCopy(v.Metadata.Tags()),
		Files:        v.FilePaths(),
		ContentBytes: len(v.Body),
		ContentHash:  v.ContentHash,
	}
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func diffSets(a, b []string) SetDiff {
	d := SetDiff{Shared: []string{}, OnlyA: []string{}, OnlyB: []string{}}
	for _, s := range a {
		if slices.Contains(b, s) {
			d.Shared = append(d.Shared, s)
		} else {
			d.OnlyA = append(d.OnlyA, s)
		}
	}
	for _, s := range b {
		if !slices.Contains(a, s) {
			d.OnlyB = append(d.OnlyB, s)
		}
	}
	return d
}
