package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// VersionsManifest is the versions.toml document, oldest record first.
type VersionsManifest struct {
	Versions []VersionRecord `toml:"versions"`
}

// VersionRecord is one published version.
type VersionRecord struct {
	Version   string    `toml:"version"`
	Published time.Time `toml:"published"`
	Yanked    bool      `toml:"yanked"`
}

var errEmptyVersions = errors.New("versions.toml has no entries")

// ParseVersions decodes a versions manifest.
func ParseVersions(data []byte) (*VersionsManifest, error) {
	var m VersionsManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", VersionsFile, err)
	}
	if len(m.Versions) == 0 {
		return nil, errEmptyVersions
	}
	return &m, nil
}

// loadVersions expands the manifest at path into a version list. current is
// the fully hydrated on-disk version; its version string must equal the last
// record's.
func loadVersions(p storage.Provider, path string, current models.SkillVersion) ([]models.SkillVersion, error) {
	data, err := p.Read(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseVersions(data)
	if err != nil {
		return nil, err
	}

	last := m.Versions[len(m.Versions)-1]
	if last.Version != current.Metadata.Skill.Version {
		return nil, fmt.Errorf("version mismatch: last entry in %s is %q but metadata says %q",
			VersionsFile, last.Version, current.Metadata.Skill.Version)
	}

	out := make([]models.SkillVersion, 0, len(m.Versions))
	for i, rec := range m.Versions {
		published := rec.Published
		if i == len(m.Versions)-1 {
			v := current
			v.Version = rec.Version
			v.Yanked = rec.Yanked
			v.Published = &published
			out = append(out, v)
			continue
		}
		out = append(out, placeholder(current.Metadata, rec))
	}
	return out, nil
}

// placeholder builds a metadata-only historical version.
func placeholder(live models.SkillMetadata, rec VersionRecord) models.SkillVersion {
	published := rec.Published
	return models.SkillVersion{
		Version: rec.Version,
		Metadata: models.SkillMetadata{Skill: models.SkillInfo{
			Name:        live.Skill.Name,
			Owner:       live.Skill.Owner,
			Version:     rec.Version,
			Description: live.Skill.Description,
		}},
		Yanked:     rec.Yanked,
		Published:  &published,
		HasContent: false,
	}
}
