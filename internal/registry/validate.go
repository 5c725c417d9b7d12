package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/integrity"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/parser"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// Validation is the outcome of checking one skill directory before it is
// published. Warnings never fail validation.
type Validation struct {
	Owner       string                `json:"owner"`
	Name        string                `json:"name"`
	Version     string                `json:"version"`
	Description string                `json:"description"`
	Categories  []string              `json:"categories"`
	Tags        []string              `json:"tags"`
	Files       []string              `json:"files"`
	BodyLines   int                   `json:"body_lines"`
	ContentHash string                `json:"content_hash"`
	Manifest    models.IntegrityState `json:"manifest"`
	Warnings    []string              `json:"warnings"`
}

// Validate checks the skill directory dir of p. Unlike Load it requires a
// skill.toml with owner, name, version and description, and a non-empty
// SKILL.md. Hard failures wrap apperr.ErrInvalidSkill.
func Validate(p storage.Provider, dir string, logger *slog.Logger) (*Validation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metaPath := joinPath(dir, MetadataFile)
	data, err := p.Read(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, invalid("%s not found", MetadataFile)
	}
	if err != nil {
		return nil, err
	}
	var meta models.SkillMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, invalid("parse %s: %v", MetadataFile, err)
	}

	body, err := p.Read(joinPath(dir, SkillFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, invalid("%s not found", SkillFile)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, invalid("%s is empty", SkillFile)
	}

	info := meta.Skill
	for _, f := range []struct{ field, value string }{
		{"name", info.Name},
		{"owner", info.Owner},
		{"version", info.Version},
	} {
		if f.value == "" || strings.ContainsFunc(f.value, unicode.IsSpace) {
			return nil, invalid("invalid %s %q: must be non-empty with no whitespace", f.field, f.value)
		}
	}
	if strings.TrimSpace(info.Description) == "" {
		return nil, invalid("description must not be empty")
	}

	entry, err := loadSkill(p, candidate{owner: info.Owner, name: info.Name, dir: dir}, logger)
	if err != nil {
		return nil, invalid("%v", err)
	}
	v := hydrated(entry)
	if v == nil {
		return nil, invalid("no version with content")
	}

	res := &Validation{
		Owner:       info.Owner,
		Name:        info.Name,
		Version:     v.Version,
		Description: info.Description,
		Categories:  nonNil(meta.Categories()),
		Tags:        nonNil(meta.Tags()),
		Files:       v.FilePaths(),
		BodyLines:   strings.Count(strings.TrimRight(string(body), "\n"), "\n") + 1,
		ContentHash: v.ContentHash,
		Manifest:    v.Integrity,
		Warnings:    []string{},
	}
	res.Warnings = append(res.Warnings, manifestWarnings(p, dir, v, logger)...)
	res.Warnings = append(res.Warnings, frontmatterWarnings(body, info)...)
	return res, nil
}

// ValidateFiles writes files, keyed by slash-separated path relative to the
// skill directory, into a scratch directory and validates that.
func ValidateFiles(files map[string]string, logger *slog.Logger) (*Validation, error) {
	tmp, err := os.MkdirTemp("", "skillet-validate-*")
	if err != nil {
		return nil, fmt.Errorf("registry: scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	scratch, err := storage.NewFS(tmp)
	if err != nil {
		return nil, err
	}
	for p, content := range files {
		if err := scratch.Write(p, []byte(content)); err != nil {
			return nil, invalid("%s: %v", p, err)
		}
	}
	return Validate(scratch, ".", logger)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidSkill, fmt.Sprintf(format, args...))
}

// hydrated returns the version that was read from disk.
func hydrated(e *models.SkillEntry) *models.SkillVersion {
	for i := len(e.Versions) - 1; i >= 0; i-- {
		if e.Versions[i].HasContent {
			return &e.Versions[i]
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func manifestWarnings(p storage.Provider, dir string, v *models.SkillVersion, logger *slog.Logger) []string {
	switch {
	case v.Manifest == "":
		return nil
	case v.Integrity == models.IntegrityVerified:
		return nil
	}
	expected, err := integrity.ParseManifest(v.Manifest)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s: %v", integrity.ManifestFile, err)}
	}
	computed, err := HashDir(p, dir, logger)
	if err != nil {
		return []string{err.Error()}
	}
	var out []string
	for _, m := range integrity.Verify(computed, expected) {
		out = append(out, "manifest mismatch: "+m.String())
	}
	return out
}

// frontmatterWarnings reports SKILL.md frontmatter that disagrees with
// skill.toml. A description that is a prefix of the other is accepted.
func frontmatterWarnings(body []byte, info models.SkillInfo) []string {
	fm := parser.Parse(body).Frontmatter
	if fm == nil {
		return nil
	}
	var out []string
	if fm.Name != "" && fm.Name != info.Name {
		out = append(out, fmt.Sprintf("%s frontmatter name %q differs from %s name %q", SkillFile, fm.Name, MetadataFile, info.Name))
	}
	if d := fm.Description; d != "" && !strings.HasPrefix(info.Description, d) && !strings.HasPrefix(d, info.Description) {
		out = append(out, fmt.Sprintf("%s frontmatter description differs from %s description", SkillFile, MetadataFile))
	}
	return out
}
