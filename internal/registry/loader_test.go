package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/storage"
	"github.com/joshrotenberg/skillet/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func load(t *testing.T, p storage.Provider, opts Options) *Result {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	res, err := Load(context.Background(), p, opts)
	require.NoError(t, err)
	return res
}

func TestLoad_OwnerSkillLayout(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "git-conventions", testutil.Skill{
		Categories: []string{"vcs"},
		Tags:       []string{"git", "commits"},
	})
	testutil.WriteSkill(t, root, "acme", "docker-workflow", testutil.Skill{
		Categories: []string{"devops"},
		Tags:       []string{"docker", "containers"},
	})
	testutil.WriteSkill(t, root, "other", "rust-dev", testutil.Skill{Categories: []string{"devops"}})
	testutil.WriteFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	res := load(t, store, Options{SourceID: "local:test"})
	assert.Empty(t, res.Errors)
	require.Len(t, res.Index.Skills, 3)

	e, err := res.Index.Get("acme", "git-conventions")
	require.NoError(t, err)
	assert.Equal(t, "local:test", e.Source)
	v, err := e.Latest()
	require.NoError(t, err)
	assert.True(t, v.HasContent)
	assert.Equal(t, "1.0.0", v.Version)
	assert.Equal(t, []string{"git", "commits"}, v.Metadata.Tags())
	assert.NotEmpty(t, v.ContentHash)
	assert.Equal(t, models.IntegrityNotChecked, v.Integrity)

	assert.Equal(t, map[string]int{"vcs": 1, "devops": 2}, res.Index.Categories)
}

func TestLoad_SkipsBrokenSkills(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "good", testutil.Skill{})

	// Missing SKILL.md.
	testutil.WriteFile(t, filepath.Join(root, "acme", "no-body", "skill.toml"),
		"[skill]\nname = \"no-body\"\nowner = \"acme\"\nversion = \"1.0.0\"\ndescription = \"x\"\n")

	// Owner mismatch.
	dir := testutil.WriteSkill(t, root, "acme", "wrong-owner", testutil.Skill{})
	testutil.WriteMetadata(t, dir, models.SkillMetadata{Skill: models.SkillInfo{
		Name: "wrong-owner", Owner: "someone-else", Version: "1.0.0",
	}})

	// Malformed metadata.
	testutil.WriteFile(t, filepath.Join(root, "acme", "bad-toml", "SKILL.md"), "# Bad\n")
	testutil.WriteFile(t, filepath.Join(root, "acme", "bad-toml", "skill.toml"), "[skill\nname=")

	res := load(t, store, Options{})
	require.Len(t, res.Index.Skills, 1)
	require.Len(t, res.Errors, 3)

	byName := map[string]*apperr.LoadError{}
	for _, le := range res.Errors {
		byName[le.Name] = le
	}
	assert.Contains(t, byName["no-body"].Error(), "missing SKILL.md")
	assert.Contains(t, byName["wrong-owner"].Error(), "owner mismatch")
	assert.Contains(t, byName["bad-toml"].Error(), "parse skill.toml")
}

func TestLoad_ZeroConfig(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "plain", testutil.Skill{
		NoMetadata: true,
		Body:       "# Plain\n\nA skill with no metadata file.\n",
	})

	res := load(t, store, Options{})
	e, err := res.Index.Get("acme", "plain")
	require.NoError(t, err)
	v, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, "A skill with no metadata file.", v.Metadata.Skill.Description)
	assert.Equal(t, "0.1.0", v.Version)
	assert.Empty(t, v.MetadataRaw)
}

func TestLoad_FlatLayout(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteFlatSkill(t, root, "pdf", testutil.Skill{Body: "---\ndescription: Work with PDFs\n---\n# PDF\n"})
	testutil.WriteFlatSkill(t, root, "xlsx", testutil.Skill{})
	testutil.WriteSkill(t, root, "acme", "nested", testutil.Skill{})

	res := load(t, store, Options{FlatOwner: "anthropics"})
	assert.Empty(t, res.Errors)
	require.Len(t, res.Index.Skills, 3)

	e, err := res.Index.Get("anthropics", "pdf")
	require.NoError(t, err)
	v, _ := e.Latest()
	assert.Equal(t, "Work with PDFs", v.Metadata.Skill.Description)

	_, err = res.Index.Get("skills", "pdf")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = res.Index.Get("acme", "nested")
	assert.NoError(t, err)
}

func TestLoad_FlatLayoutDeclaredOwner(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	dir := testutil.WriteFlatSkill(t, root, "pdf", testutil.Skill{})
	testutil.WriteMetadata(t, dir, models.SkillMetadata{Skill: models.SkillInfo{
		Name: "pdf", Owner: "anthropics", Version: "2.0.0", Description: "PDF tools",
	}})
	dir = testutil.WriteFlatSkill(t, root, "docx", testutil.Skill{})
	testutil.WriteMetadata(t, dir, models.SkillMetadata{Skill: models.SkillInfo{
		Name: "docx", Version: "1.0.0", Description: "Word documents",
	}})

	res := load(t, store, Options{FlatOwner: "local-repo"})
	assert.Empty(t, res.Errors)
	require.Len(t, res.Index.Skills, 2)

	e, err := res.Index.Get("anthropics", "pdf")
	require.NoError(t, err)
	v, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v.Version)
	assert.NotEmpty(t, v.MetadataRaw)

	// Without a declared owner the source's owner applies.
	e, err = res.Index.Get("local-repo", "docx")
	require.NoError(t, err)
	v, err = e.Latest()
	require.NoError(t, err)
	assert.Equal(t, "local-repo", v.Metadata.Skill.Owner)
}

func TestLoad_Subdir(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, filepath.Join(root, "registry"), "acme", "scoped", testutil.Skill{})
	testutil.WriteSkill(t, root, "outside", "ignored", testutil.Skill{})

	res := load(t, store, Options{Subdir: "registry"})
	require.Len(t, res.Index.Skills, 1)
	_, err := res.Index.Get("acme", "scoped")
	assert.NoError(t, err)
}

func TestLoad_RootNotDirectory(t *testing.T) {
	_, store := testutil.TestRegistry(t)
	res, err := Load(context.Background(), store, Options{Subdir: "missing", Logger: quietLogger()})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Index.Skills)
}

func TestLoad_ExtraFiles(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "tools", testutil.Skill{
		Files: map[string]string{
			"scripts/run.sh":      "#!/bin/sh\n",
			"references/guide.md": "# Guide\n",
			"assets/config.yaml":  "a: 1\n",
			"rules/style.txt":     "be nice\n",
			"other/ignored.txt":   "not collected\n",
			"scripts/nested/x.py": "print(1)\n",
		},
	})
	testutil.WriteFile(t, filepath.Join(root, "acme", "tools", "assets", "logo.bin"), string([]byte{0xff, 0xfe, 0x00}))

	res := load(t, store, Options{})
	e, err := res.Index.Get("acme", "tools")
	require.NoError(t, err)
	v, _ := e.Latest()

	assert.Equal(t, []string{"assets/config.yaml", "references/guide.md", "rules/style.txt", "scripts/run.sh"}, v.FilePaths())
	assert.Equal(t, "text/x-shellscript", v.Files["scripts/run.sh"].MIMEType)
	assert.Equal(t, "text/yaml", v.Files["assets/config.yaml"].MIMEType)
	assert.Equal(t, "text/plain", v.Files["rules/style.txt"].MIMEType)
}

func TestLoad_VersionHistory(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "rust-dev", testutil.Skill{Version: "2026.02.24", Tags: []string{"rust"}})
	testutil.WriteVersions(t, root, "acme", "rust-dev",
		testutil.Version{Version: "2026.01.01", Yanked: true},
		testutil.Version{Version: "2026.02.01", Yanked: true},
		testutil.Version{Version: "2026.02.24"},
	)

	res := load(t, store, Options{})
	require.Empty(t, res.Errors)
	e, err := res.Index.Get("acme", "rust-dev")
	require.NoError(t, err)
	require.Len(t, e.Versions, 3)

	assert.Equal(t, "2026.01.01", e.Versions[0].Version)
	assert.False(t, e.Versions[0].HasContent)
	assert.Empty(t, e.Versions[0].Body)
	assert.NotNil(t, e.Versions[0].Published)
	assert.Nil(t, e.Versions[0].Metadata.Skill.Classification)

	latest, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, "2026.02.24", latest.Version)
	assert.True(t, latest.HasContent)

	old, err := e.Version("2026.01.01")
	require.NoError(t, err)
	assert.Equal(t, "rust-dev", old.Metadata.Skill.Name)
	_, err = old.Content()
	assert.ErrorIs(t, err, apperr.ErrContentNotRetained)
}

func TestLoad_VersionMismatch(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "drift", testutil.Skill{Version: "2.0.0"})
	testutil.WriteVersions(t, root, "acme", "drift",
		testutil.Version{Version: "1.0.0"},
		testutil.Version{Version: "1.5.0"},
	)

	res := load(t, store, Options{})
	assert.Empty(t, res.Index.Skills)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "version mismatch")
}

func TestLoad_ManifestVerification(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	okDir := testutil.WriteSkill(t, root, "acme", "verified", testutil.Skill{
		Files: map[string]string{"scripts/a.sh": "echo a\n"},
	})
	testutil.WriteManifest(t, okDir)

	badDir := testutil.WriteSkill(t, root, "acme", "tampered", testutil.Skill{
		Files: map[string]string{"scripts/a.sh": "echo a\n"},
	})
	testutil.WriteManifest(t, badDir)
	testutil.WriteFile(t, filepath.Join(badDir, "scripts", "a.sh"), "echo b\n")

	res := load(t, store, Options{})

	e, _ := res.Index.Get("acme", "verified")
	v, _ := e.Latest()
	assert.Equal(t, models.IntegrityVerified, v.Integrity)

	e, _ = res.Index.Get("acme", "tampered")
	v, _ = e.Latest()
	assert.Equal(t, models.IntegrityFailed, v.Integrity)
}

func TestLoad_CancelledContext(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "a", testutil.Skill{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, store, Options{Logger: quietLogger()})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoad_EmbeddedProvider(t *testing.T) {
	mem := fstest.MapFS{
		"acme/hello/SKILL.md": {Data: []byte("# Hello\n\nGreets people.\n")},
	}
	p, err := storage.NewEmbedded(mem, "")
	require.NoError(t, err)

	res := load(t, p, Options{SourceID: "embedded:defaults"})
	require.Len(t, res.Index.Skills, 1)
	e, err := res.Index.Get("acme", "hello")
	require.NoError(t, err)
	assert.Equal(t, "embedded:defaults", e.Source)
}

func TestMIMEType(t *testing.T) {
	cases := map[string]string{
		"a.md":     "text/markdown",
		"a.sh":     "text/x-shellscript",
		"a.bash":   "text/x-shellscript",
		"a.py":     "text/x-python",
		"a.js":     "text/javascript",
		"a.ts":     "text/typescript",
		"a.json":   "application/json",
		"a.toml":   "application/toml",
		"a.yml":    "text/yaml",
		"a.yaml":   "text/yaml",
		"a.txt":    "text/plain",
		"Makefile": "text/plain",
	}
	for name, want := range cases {
		assert.Equal(t, want, MIMEType(name), name)
	}
}

func TestHashDir(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	dir := testutil.WriteSkill(t, root, "acme", "hashed", testutil.Skill{
		Files: map[string]string{"scripts/a.sh": "echo a\n", "rules/style.md": "# style\n"},
	})
	want := testutil.WriteManifest(t, dir)

	got, err := HashDir(store, "acme/hashed", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, want.Composite, got.Composite)
	assert.Equal(t, want.Files, got.Files)

	// Rooted at the skill directory itself.
	skillFS, err := storage.NewFS(dir)
	require.NoError(t, err)
	got, err = HashDir(skillFS, ".", nil)
	require.NoError(t, err)
	assert.Equal(t, want.Composite, got.Composite)

	_, err = HashDir(store, "acme/missing", quietLogger())
	assert.Error(t, err)
}
