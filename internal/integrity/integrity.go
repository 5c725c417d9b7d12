// Package integrity computes and verifies content hashes for skill versions.
//
// A skill directory may ship a MANIFEST.sha256 file listing one
// "<hash>  <path>" line per file plus a composite line whose path is "*".
package integrity

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/checksum"
	"github.com/joshrotenberg/skillet/internal/models"
)

// Fixed names under which the body and metadata documents are hashed.
const (
	BodyPath      = "SKILL.md"
	MetadataPath  = "skill.toml"
	ManifestFile  = "MANIFEST.sha256"
	CompositePath = "*"
)

// ContentHashes holds per-file hashes and the composite hash.
type ContentHashes struct {
	Files     map[string]string
	Composite string
}

// Files is the input to Compute.
type Files struct {
	Body     string
	Metadata string
	Extra    map[string]models.SkillFile
}

// Compute hashes the body, the metadata document, and every auxiliary file.
func Compute(f Files) ContentHashes {
	files := make(map[string]string, len(f.Extra)+2)
	files[BodyPath] = checksum.SumString(f.Body)
	files[MetadataPath] = checksum.SumString(f.Metadata)
	for p, file := range f.Extra {
		files[p] = checksum.SumString(file.Content)
	}
	return ContentHashes{Files: files, Composite: composite(files)}
}

// composite hashes the path-sorted concatenation of path+hash pairs.
func composite(files map[string]string) string {
	var b strings.Builder
	for _, p := range sortedKeys(files) {
		b.WriteString(p)
		b.WriteString(files[p])
	}
	return checksum.SumString(b.String())
}

// ParseManifest reads MANIFEST.sha256 content. Blank lines and lines
// starting with '#' are ignored; a composite line is required.
func ParseManifest(content string) (ContentHashes, error) {
	files := make(map[string]string)
	var comp string

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hash, path, ok := strings.Cut(line, "  ")
		if !ok {
			return ContentHashes{}, fmt.Errorf("%w: expected two-space separator: %q", apperr.ErrInvalidManifest, line)
		}
		hash = strings.TrimSpace(hash)
		path = strings.TrimSpace(path)
		if path == CompositePath {
			comp = hash
			continue
		}
		files[path] = hash
	}
	if err := sc.Err(); err != nil {
		return ContentHashes{}, fmt.Errorf("%w: %v", apperr.ErrInvalidManifest, err)
	}
	if comp == "" {
		return ContentHashes{}, fmt.Errorf("%w: missing composite hash (line with %q path)", apperr.ErrInvalidManifest, CompositePath)
	}
	return ContentHashes{Files: files, Composite: comp}, nil
}

// FormatManifest renders hashes in MANIFEST.sha256 form: the composite line
// first, then files sorted by path.
func FormatManifest(h ContentHashes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", h.Composite, CompositePath)
	for _, p := range sortedKeys(h.Files) {
		fmt.Fprintf(&b, "%s  %s\n", h.Files[p], p)
	}
	return b.String()
}

// MismatchKind classifies a verification failure.
type MismatchKind string

const (
	MismatchComposite  MismatchKind = "composite"
	MismatchModified   MismatchKind = "modified"
	MismatchMissing    MismatchKind = "missing"
	MismatchUnexpected MismatchKind = "unexpected"
)

// Mismatch is one itemized verification failure.
type Mismatch struct {
	Kind     MismatchKind `json:"kind"`
	Path     string       `json:"path,omitempty"`
	Expected string       `json:"expected,omitempty"`
	Computed string       `json:"computed,omitempty"`
}

func (m Mismatch) String() string {
	switch m.Kind {
	case MismatchComposite:
		return fmt.Sprintf("composite hash mismatch: expected %s, computed %s", m.Expected, m.Computed)
	case MismatchModified:
		return fmt.Sprintf("%s: expected %s, computed %s", m.Path, m.Expected, m.Computed)
	case MismatchMissing:
		return fmt.Sprintf("%s: listed in manifest but not found on disk", m.Path)
	default:
		return fmt.Sprintf("%s: found on disk but not in manifest", m.Path)
	}
}

// Verify compares computed hashes against expected ones. An empty result
// means the content matches the manifest.
func Verify(computed, expected ContentHashes) []Mismatch {
	var out []Mismatch
	if computed.Composite != expected.Composite {
		out = append(out, Mismatch{Kind: MismatchComposite, Expected: expected.Composite, Computed: computed.Composite})
	}
	for _, p := range sortedKeys(expected.Files) {
		want := expected.Files[p]
		got, ok := computed.Files[p]
		switch {
		case !ok:
			out = append(out, Mismatch{Kind: MismatchMissing, Path: p, Expected: want})
		case got != want:
			out = append(out, Mismatch{Kind: MismatchModified, Path: p, Expected: want, Computed: got})
		}
	}
	for _, p := range sortedKeys(computed.Files) {
		if _, ok := expected.Files[p]; !ok {
			out = append(out, Mismatch{Kind: MismatchUnexpected, Path: p, Computed: computed.Files[p]})
		}
	}
	return out
}

// Strings renders mismatches as human-readable lines.
func Strings(ms []Mismatch) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
