package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/models"
)

type named string

func (n named) CacheName() string { return string(n) }

func testIndex() *models.SkillIndex {
	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	idx := models.NewSkillIndex()
	e := &models.SkillEntry{
		Owner:  "test-owner",
		Name:   "test-skill",
		Source: "local:/srv/skills",
		Versions: []models.SkillVersion{
			{
				Version:   "0.1.0",
				Metadata:  models.SkillMetadata{Skill: models.SkillInfo{Name: "test-skill", Owner: "test-owner", Version: "0.1.0"}},
				Published: &published,
			},
			{
				Version: "0.2.0",
				Metadata: models.SkillMetadata{Skill: models.SkillInfo{
					Name:           "test-skill",
					Owner:          "test-owner",
					Version:        "0.2.0",
					Description:    "A test skill",
					Classification: &models.Classification{Categories: []string{"testing"}, Tags: []string{"t"}},
				}},
				Body:        "# Test\n",
				Files:       map[string]models.SkillFile{"scripts/run.sh": {Content: "echo", MIMEType: "text/x-shellscript"}},
				HasContent:  true,
				ContentHash: "sha256:abc",
				Integrity:   models.IntegrityVerified,
			},
		},
	}
	idx.Skills[e.Key()] = e
	idx.RecountCategories()
	return idx
}

func TestWriteLoad_Fresh(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_800_000_000, 0)
	idx := testIndex()

	require.NoError(t, Write(dir, named("acme_skills"), "deadbeef", idx, now))
	assert.FileExists(t, filepath.Join(dir, "acme_skills.json"))

	res := Load(dir, named("acme_skills"), 5*time.Minute, now.Add(time.Minute))
	require.NoError(t, res.Err)
	assert.Equal(t, Fresh, res.State)
	assert.Equal(t, "deadbeef", res.Revision)
	assert.Equal(t, now.Unix(), res.CachedAt.Unix())
	assert.Equal(t, idx.Categories, res.Index.Categories)

	got, err := res.Index.Get("test-owner", "test-skill")
	require.NoError(t, err)
	want, _ := idx.Get("test-owner", "test-skill")
	require.Len(t, got.Versions, 2)
	assert.Equal(t, want.Source, got.Source)
	assert.False(t, got.Versions[0].HasContent)
	assert.True(t, got.Versions[0].Published.Equal(*want.Versions[0].Published))
	assert.Equal(t, want.Versions[1].Body, got.Versions[1].Body)
	assert.Equal(t, want.Versions[1].Files, got.Versions[1].Files)
	assert.Equal(t, want.Versions[1].Metadata, got.Versions[1].Metadata)
	assert.Equal(t, models.IntegrityVerified, got.Versions[1].Integrity)
	assert.Equal(t, "sha256:abc", got.Versions[1].ContentHash)
}

func TestLoad_Absent(t *testing.T) {
	res := Load(filepath.Join(t.TempDir(), "missing"), named("x"), 0, time.Now())
	assert.Equal(t, Absent, res.State)
	assert.NoError(t, res.Err)
	assert.Nil(t, res.Index)
}

func TestLoad_StaleByTTL(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_800_000_000, 0)
	require.NoError(t, Write(dir, named("x"), "r1", testIndex(), now))

	res := Load(dir, named("x"), time.Minute, now.Add(2*time.Minute))
	assert.Equal(t, Stale, res.State)
	assert.NotNil(t, res.Index, "stale results still carry the snapshot")
	assert.Equal(t, "r1", res.Revision)
}

func TestLoad_ZeroTTLNeverExpires(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_800_000_000, 0)
	require.NoError(t, Write(dir, named("x"), "r1", testIndex(), now))

	res := Load(dir, named("x"), 0, now.Add(24*365*time.Hour))
	assert.Equal(t, Fresh, res.State)
}

func TestLoad_CorruptIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte("{not json"), 0o644))

	res := Load(dir, named("x"), 0, time.Now())
	assert.Equal(t, Absent, res.State)
	assert.Error(t, res.Err)
	assert.Nil(t, res.Index)
}

func TestLoad_VersionMismatchIsAbsent(t *testing.T) {
	dir := t.TempDir()
	doc := `{"version": 99, "revision": "r", "cached_at": 0, "skills": [], "categories": {}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte(doc), 0o644))

	res := Load(dir, named("x"), 0, time.Now())
	assert.Equal(t, Absent, res.State)
	assert.ErrorContains(t, res.Err, "version 99")
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_800_000_000, 0)
	require.NoError(t, Write(dir, named("x"), "r1", testIndex(), now))
	require.NoError(t, Write(dir, named("x"), "r2", models.NewSkillIndex(), now))

	res := Load(dir, named("x"), 0, now)
	assert.Equal(t, "r2", res.Revision)
	assert.Empty(t, res.Index.Skills)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".cache-tmp-")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "absent", Absent.String())
}
