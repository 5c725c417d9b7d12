package integrity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/models"
)

func sampleFiles() Files {
	return Files{
		Body:     "# Git conventions\nUse conventional commits.\n",
		Metadata: "[skill]\nname = \"git-conventions\"\nowner = \"acme\"\n",
		Extra: map[string]models.SkillFile{
			"scripts/lint.sh":       {Content: "#!/bin/sh\necho ok\n", MIMEType: "text/x-shellscript"},
			"references/commits.md": {Content: "feat: fix: chore:\n", MIMEType: "text/markdown"},
		},
	}
}

func TestCompute_IncludesFixedPaths(t *testing.T) {
	h := Compute(sampleFiles())
	require.Len(t, h.Files, 4)
	assert.Contains(t, h.Files, BodyPath)
	assert.Contains(t, h.Files, MetadataPath)
	assert.True(t, strings.HasPrefix(h.Composite, "sha256:"))
	for p, v := range h.Files {
		assert.Truef(t, strings.HasPrefix(v, "sha256:"), "hash for %s = %q", p, v)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute(sampleFiles())
	b := Compute(sampleFiles())
	assert.Equal(t, a, b)
}

func TestRoundTrip_NoMismatches(t *testing.T) {
	computed := Compute(sampleFiles())
	parsed, err := ParseManifest(FormatManifest(computed))
	require.NoError(t, err)
	assert.Empty(t, Verify(computed, parsed))
}

func TestTamperOneByte_ReportsOnlyThatFile(t *testing.T) {
	files := sampleFiles()
	original := Compute(files)

	tampered := sampleFiles()
	tampered.Extra["scripts/lint.sh"] = models.SkillFile{Content: "#!/bin/sh\necho oK\n"}
	computed := Compute(tampered)

	for p := range original.Files {
		if p == "scripts/lint.sh" {
			assert.NotEqual(t, original.Files[p], computed.Files[p])
		} else {
			assert.Equal(t, original.Files[p], computed.Files[p], p)
		}
	}
	assert.NotEqual(t, original.Composite, computed.Composite)

	ms := Verify(computed, original)
	require.Len(t, ms, 2)
	assert.Equal(t, MismatchComposite, ms[0].Kind)
	assert.Equal(t, MismatchModified, ms[1].Kind)
	assert.Equal(t, "scripts/lint.sh", ms[1].Path)
}

func TestVerify_FileOnDiskNotInManifest(t *testing.T) {
	computed := Compute(sampleFiles())
	expected := ContentHashes{Files: map[string]string{}, Composite: computed.Composite}
	for p, h := range computed.Files {
		if p != "references/commits.md" {
			expected.Files[p] = h
		}
	}

	ms := Verify(computed, expected)
	require.Len(t, ms, 1)
	assert.Equal(t, MismatchUnexpected, ms[0].Kind)
	assert.Equal(t, "references/commits.md: found on disk but not in manifest", ms[0].String())
}

func TestVerify_ListedButMissing(t *testing.T) {
	computed := Compute(sampleFiles())
	expected := ContentHashes{Files: map[string]string{}, Composite: computed.Composite}
	for p, h := range computed.Files {
		expected.Files[p] = h
	}
	expected.Files["assets/logo.svg"] = "sha256:deadbeef"

	ms := Verify(computed, expected)
	require.Len(t, ms, 1)
	assert.Equal(t, "assets/logo.svg: listed in manifest but not found on disk", ms[0].String())
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		files   int
		wantErr bool
	}{
		{
			name:  "comments and blanks ignored",
			input: "# generated\n\nsha256:aaa  *\nsha256:bbb  SKILL.md\n\nsha256:ccc  skill.toml\n",
			files: 2,
		},
		{
			name:    "missing composite",
			input:   "sha256:bbb  SKILL.md\n",
			wantErr: true,
		},
		{
			name:    "single space separator",
			input:   "sha256:aaa *\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseManifest(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, apperr.ErrInvalidManifest)
				return
			}
			require.NoError(t, err)
			assert.Len(t, h.Files, tt.files)
			assert.Equal(t, "sha256:aaa", h.Composite)
		})
	}
}

func TestFormatManifest_CompositeFirstSorted(t *testing.T) {
	out := FormatManifest(ContentHashes{
		Composite: "sha256:c",
		Files:     map[string]string{"b.md": "sha256:2", "a.md": "sha256:1"},
	})
	assert.Equal(t, "sha256:c  *\nsha256:1  a.md\nsha256:2  b.md\n", out)
}

func TestMismatchStrings(t *testing.T) {
	lines := Strings([]Mismatch{
		{Kind: MismatchComposite, Expected: "x", Computed: "y"},
		{Kind: MismatchModified, Path: "SKILL.md", Expected: "x", Computed: "y"},
	})
	assert.Equal(t, []string{
		"composite hash mismatch: expected x, computed y",
		"SKILL.md: expected x, computed y",
	}, lines)
}
