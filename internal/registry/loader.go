// Package registry loads skill directories into a SkillIndex and merges
// indices from several sources.
//
// Layout:
//
//	root/
//	  owner/
//	    skill-name/
//	      SKILL.md          required
//	      skill.toml        optional, inferred from SKILL.md when absent
//	      versions.toml     optional version history
//	      MANIFEST.sha256   optional integrity manifest
//	      scripts/ references/ assets/ rules/
//
// Sources that keep every skill under a single skills/ directory (no owner
// segment) are detected and loaded under an owner derived from the source.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/integrity"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/parser"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// File names inside a skill directory.
const (
	SkillFile    = "SKILL.md"
	MetadataFile = "skill.toml"
	VersionsFile = "versions.toml"
	FlatDir      = "skills"
)

var errNotDir = errors.New("registry root is not a directory")

// Options controls a load.
type Options struct {
	// SourceID is recorded on every loaded entry.
	SourceID string
	// Subdir scopes the load to a directory below the provider root.
	Subdir string
	// FlatOwner is the owner assigned to skills found in a flat skills/
	// layout. Defaults to "local".
	FlatOwner string
	Logger    *slog.Logger
}

// Result is the outcome of a load. Failed skills are absent from Index and
// listed in Errors.
type Result struct {
	Index  *models.SkillIndex
	Errors []*apperr.LoadError
}

type candidate struct {
	owner string
	name  string
	dir   string
	// flat candidates have no owner directory; a declared owner wins.
	flat bool
}

// Load walks the provider and builds an index. The returned error is
// non-nil only when the root itself cannot be read; per-skill failures are
// collected in Result.Errors.
func Load(ctx context.Context, p storage.Provider, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := strings.Trim(path.Clean("/"+opts.Subdir), "/")
	if root == "" {
		root = "."
	}
	if !storage.IsDir(p, root) {
		return &Result{Index: models.NewSkillIndex()}, fmt.Errorf("registry: %s: %w", root, errNotDir)
	}

	candidates, err := discover(ctx, p, root, opts)
	if err != nil {
		return &Result{Index: models.NewSkillIndex()}, err
	}

	res := &Result{Index: models.NewSkillIndex()}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry, err := loadSkill(p, c, logger)
		if err != nil {
			le := &apperr.LoadError{Owner: c.owner, Name: c.name, Path: c.dir, Err: err}
			logger.Warn("registry: skipping skill",
				slog.String("owner", c.owner),
				slog.String("skill", c.name),
				slog.String("error", err.Error()))
			res.Errors = append(res.Errors, le)
			continue
		}
		key := entry.Key()
		if _, dup := res.Index.Skills[key]; dup {
			continue
		}
		entry.Source = opts.SourceID
		res.Index.Skills[key] = entry
	}
	res.Index.RecountCategories()

	logger.Info("registry: loaded index",
		slog.String("source", opts.SourceID),
		slog.Int("skills", len(res.Index.Skills)),
		slog.Int("categories", len(res.Index.Categories)),
		slog.Int("errors", len(res.Errors)))
	return res, nil
}

// discover collects skill directories with a bounded work queue: the root
// level yields owners, the owner level yields skills. The flat skills/
// layout is handled in a separate pass.
func discover(ctx context.Context, p storage.Provider, root string, opts Options) ([]candidate, error) {
	type item struct {
		dir   string
		owner string
		depth int
	}
	flat, err := flatSkills(p, root)
	if err != nil {
		return nil, err
	}

	var out []candidate
	queue := []item{{dir: root, depth: 0}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it := queue[0]
		queue = queue[1:]

		entries, err := p.ReadDir(it.dir)
		if err != nil {
			if it.depth == 0 {
				return nil, fmt.Errorf("registry: read root: %w", err)
			}
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			child := joinPath(it.dir, name)
			switch it.depth {
			case 0:
				if name == FlatDir && len(flat) > 0 {
					continue
				}
				queue = append(queue, item{dir: child, owner: name, depth: 1})
			case 1:
				out = append(out, candidate{owner: it.owner, name: name, dir: child})
			}
		}
	}

	owner := opts.FlatOwner
	if owner == "" {
		owner = "local"
	}
	for _, name := range flat {
		out = append(out, candidate{owner: owner, name: name, dir: joinPath(root, FlatDir, name), flat: true})
	}
	return out, nil
}

// flatSkills returns skill names under root/skills/ that carry a SKILL.md,
// sorted by name.
func flatSkills(p storage.Provider, root string) ([]string, error) {
	pattern := joinPath(root, FlatDir, "*", SkillFile)
	matches, err := doublestar.Glob(p.FS(), pattern)
	if err != nil {
		return nil, fmt.Errorf("registry: flat layout: %w", err)
	}
	var names []string
	for _, m := range matches {
		name := path.Base(path.Dir(m))
		if strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func joinPath(elem ...string) string {
	if len(elem) > 0 && elem[0] == "." {
		elem = elem[1:]
	}
	return path.Join(elem...)
}

// loadSkill builds one entry. With a versions manifest, only the last record
// is hydrated from disk; earlier records become placeholders.
func loadSkill(p storage.Provider, c candidate, logger *slog.Logger) (*models.SkillEntry, error) {
	body, err := p.Read(joinPath(c.dir, SkillFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("missing %s", SkillFile)
		}
		return nil, err
	}

	var (
		meta models.SkillMetadata
		raw  string
	)
	metaPath := joinPath(c.dir, MetadataFile)
	if storage.Exists(p, metaPath) {
		data, err := p.Read(metaPath)
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
		}
		switch {
		case c.flat && meta.Skill.Owner != "":
			c.owner = meta.Skill.Owner
		case c.flat:
			meta.Skill.Owner = c.owner
		case meta.Skill.Owner != c.owner:
			return nil, fmt.Errorf("owner mismatch: %s says %q but directory is %q", MetadataFile, meta.Skill.Owner, c.owner)
		}
		if meta.Skill.Name != c.name {
			return nil, fmt.Errorf("name mismatch: %s says %q but directory is %q", MetadataFile, meta.Skill.Name, c.name)
		}
		raw = string(data)
	} else {
		meta = parser.InferMetadata(c.owner, c.name, body)
	}

	files, err := loadExtraFiles(p, c.dir, logger)
	if err != nil {
		return nil, err
	}

	hashes := integrity.Compute(integrity.Files{Body: string(body), Metadata: raw, Extra: files})
	state, manifest := verifyManifest(p, c, hashes, logger)

	current := models.SkillVersion{
		Version:     meta.Skill.Version,
		Metadata:    meta,
		Body:        string(body),
		MetadataRaw: raw,
		Files:       files,
		HasContent:  true,
		ContentHash: hashes.Composite,
		Integrity:   state,
		Manifest:    manifest,
	}

	entry := &models.SkillEntry{Owner: c.owner, Name: c.name}
	versionsPath := joinPath(c.dir, VersionsFile)
	if !storage.Exists(p, versionsPath) {
		entry.Versions = []models.SkillVersion{current}
		return entry, nil
	}

	versions, err := loadVersions(p, versionsPath, current)
	if err != nil {
		return nil, err
	}
	entry.Versions = versions
	return entry, nil
}

// verifyManifest checks MANIFEST.sha256 when present. Unreadable or
// malformed manifests leave the version unchecked. The raw manifest is
// returned whenever it could be read.
func verifyManifest(p storage.Provider, c candidate, computed integrity.ContentHashes, logger *slog.Logger) (models.IntegrityState, string) {
	manifestPath := joinPath(c.dir, integrity.ManifestFile)
	if !storage.Exists(p, manifestPath) {
		return models.IntegrityNotChecked, ""
	}
	data, err := p.Read(manifestPath)
	if err != nil {
		logger.Warn("registry: manifest unreadable", slog.String("path", manifestPath), slog.String("error", err.Error()))
		return models.IntegrityNotChecked, ""
	}
	expected, err := integrity.ParseManifest(string(data))
	if err != nil {
		logger.Warn("registry: manifest invalid", slog.String("path", manifestPath), slog.String("error", err.Error()))
		return models.IntegrityNotChecked, string(data)
	}
	mismatches := integrity.Verify(computed, expected)
	if len(mismatches) == 0 {
		return models.IntegrityVerified, string(data)
	}
	for _, m := range mismatches {
		logger.Warn("registry: content integrity check failed",
			slog.String("path", manifestPath),
			slog.String("mismatch", m.String()))
	}
	return models.IntegrityFailed, string(data)
}

// HashDir computes the content hashes of the skill directory dir the same
// way Load does, for writing a MANIFEST.sha256.
func HashDir(p storage.Provider, dir string, logger *slog.Logger) (integrity.ContentHashes, error) {
	if logger == nil {
		logger = slog.Default()
	}
	body, err := p.Read(joinPath(dir, SkillFile))
	if err != nil {
		return integrity.ContentHashes{}, fmt.Errorf("registry: read %s: %w", SkillFile, err)
	}
	var raw string
	if metaPath := joinPath(dir, MetadataFile); storage.Exists(p, metaPath) {
		data, err := p.Read(metaPath)
		if err != nil {
			return integrity.ContentHashes{}, fmt.Errorf("registry: read %s: %w", MetadataFile, err)
		}
		raw = string(data)
	}
	files, err := loadExtraFiles(p, dir, logger)
	if err != nil {
		return integrity.ContentHashes{}, err
	}
	return integrity.Compute(integrity.Files{Body: string(body), Metadata: raw, Extra: files}), nil
}
