// Package testutil provides shared test helpers for building skill
// registries on disk.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/joshrotenberg/skillet/internal/integrity"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// Skill describes a skill directory to write.
type Skill struct {
	Description  string
	Trigger      string
	Version      string
	Categories   []string
	Tags         []string
	VerifiedWith []string
	Body         string
	// Files maps paths such as "scripts/run.sh" to content.
	Files map[string]string
	// NoMetadata omits skill.toml (zero-config layout).
	NoMetadata bool
}

// Version is one record for WriteVersions.
type Version struct {
	Version   string
	Published time.Time
	Yanked    bool
}

// TestRegistry creates a temporary registry directory with a storage.FS.
func TestRegistry(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteSkill writes root/owner/name with SKILL.md, skill.toml and any extra
// files, returning the skill directory.
func WriteSkill(t *testing.T, root, owner, name string, s Skill) string {
	t.Helper()
	dir := filepath.Join(root, owner, name)
	writeSkillDir(t, dir, owner, name, s)
	return dir
}

// WriteFlatSkill writes root/skills/name without an owner segment.
func WriteFlatSkill(t *testing.T, root, name string, s Skill) string {
	t.Helper()
	dir := filepath.Join(root, "skills", name)
	s.NoMetadata = true
	writeSkillDir(t, dir, "", name, s)
	return dir
}

func writeSkillDir(t *testing.T, dir, owner, name string, s Skill) {
	t.Helper()
	if s.Version == "" {
		s.Version = "1.0.0"
	}
	if s.Description == "" {
		s.Description = "The " + name + " skill"
	}
	body := s.Body
	if body == "" {
		body = fmt.Sprintf("# %s\n\n%s\n", name, s.Description)
	}
	WriteFile(t, filepath.Join(dir, "SKILL.md"), body)

	if !s.NoMetadata {
		meta := models.SkillMetadata{Skill: models.SkillInfo{
			Name:        name,
			Owner:       owner,
			Version:     s.Version,
			Description: s.Description,
			Trigger:     s.Trigger,
		}}
		if len(s.Categories) > 0 || len(s.Tags) > 0 {
			meta.Skill.Classification = &models.Classification{Categories: s.Categories, Tags: s.Tags}
		}
		if len(s.VerifiedWith) > 0 {
			meta.Skill.Compatibility = &models.Compatibility{VerifiedWith: s.VerifiedWith}
		}
		WriteMetadata(t, dir, meta)
	}

	for rel, content := range s.Files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
}

// WriteMetadata encodes meta as skill.toml in dir.
func WriteMetadata(t *testing.T, dir string, meta models.SkillMetadata) {
	t.Helper()
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(meta); err != nil {
		t.Fatal(err)
	}
	WriteFile(t, filepath.Join(dir, "skill.toml"), buf.String())
}

// WriteVersions writes versions.toml for root/owner/name.
func WriteVersions(t *testing.T, root, owner, name string, records ...Version) {
	t.Helper()
	var b strings.Builder
	for _, r := range records {
		published := r.Published
		if published.IsZero() {
			published = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		fmt.Fprintf(&b, "[[versions]]\nversion = %q\npublished = %s\nyanked = %t\n\n",
			r.Version, published.UTC().Format(time.RFC3339), r.Yanked)
	}
	WriteFile(t, filepath.Join(root, owner, name, "versions.toml"), b.String())
}

// WriteManifest computes hashes of the skill directory as it is on disk and
// writes MANIFEST.sha256.
func WriteManifest(t *testing.T, dir string) integrity.ContentHashes {
	t.Helper()
	body := ReadFile(t, filepath.Join(dir, "SKILL.md"))
	var meta string
	if data, err := os.ReadFile(filepath.Join(dir, "skill.toml")); err == nil {
		meta = string(data)
	}
	extra := make(map[string]models.SkillFile)
	for _, sub := range []string{"scripts", "references", "assets", "rules"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			extra[sub+"/"+e.Name()] = models.SkillFile{Content: ReadFile(t, filepath.Join(dir, sub, e.Name()))}
		}
	}
	h := integrity.Compute(integrity.Files{Body: body, Metadata: meta, Extra: extra})
	WriteFile(t, filepath.Join(dir, integrity.ManifestFile), integrity.FormatManifest(h))
	return h
}

// WriteFile writes content, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
