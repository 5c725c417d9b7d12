// Package source defines the content sources a registry is loaded from: a
// local directory, a git remote kept in a local clone, and the defaults
// compiled into the binary.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/joshrotenberg/skillet/internal/checksum"
	"github.com/joshrotenberg/skillet/internal/parser"
	"github.com/joshrotenberg/skillet/internal/storage"
)

// Kind names a source variant.
type Kind string

const (
	KindLocal    Kind = "local"
	KindRemote   Kind = "remote"
	KindEmbedded Kind = "embedded"
)

// EmbeddedID is the registry id of the compiled-in defaults.
const EmbeddedID = "embedded:defaults"

// Source is one of *Local, *Remote or *Embedded.
type Source interface {
	// ID is the stable registry identifier used for trust records, cache
	// files and entry provenance.
	ID() string
	Kind() Kind
	// Sync brings the content up to date and returns its revision.
	Sync(ctx context.Context) (string, error)
	// Provider gives read access to the synced tree.
	Provider() (storage.Provider, error)
	// Subdir scopes loading below the provider root.
	Subdir() string
	// FlatOwner is the owner assigned to skills in a flat skills/ layout.
	FlatOwner() string
	// CacheName is the base name of this source's cache file.
	CacheName() string

	sealed()
}

// SlugForURL derives a filesystem-safe name from the last two segments of a
// remote URL, without a trailing .git. It returns "default" when nothing is
// left.
func SlugForURL(url string) string {
	u := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	parts := strings.FieldsFunc(u, func(r rune) bool { return r == '/' || r == ':' })
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	for i, p := range parts {
		parts[i] = strings.Map(func(r rune) rune {
			if r == '\\' || r == '@' || r == ' ' {
				return '_'
			}
			return r
		}, p)
	}
	slug := strings.Join(parts, "_")
	if slug == "" {
		return "default"
	}
	return slug
}

// Local is a plain directory. Its revision is a fingerprint of every file's
// path, size and mtime, prefixed with the git HEAD when the path is a
// checkout.
type Local struct {
	path   string
	subdir string
	puller Puller
}

// NewLocal returns a local source rooted at path, made absolute. puller may
// be nil, in which case git checkouts are fingerprinted like plain trees.
func NewLocal(path, subdir string, puller Puller) (*Local, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("source: resolve %s: %w", path, err)
	}
	return &Local{path: abs, subdir: subdir, puller: puller}, nil
}

func (l *Local) ID() string        { return "local:" + l.path }
func (l *Local) Kind() Kind        { return KindLocal }
func (l *Local) Path() string      { return l.path }
func (l *Local) Subdir() string    { return l.subdir }
func (l *Local) FlatOwner() string { return parser.InferOwner(l.path) }
func (l *Local) CacheName() string { return "local_" + checksum.Short(l.path) }
func (l *Local) sealed()           {}

func (l *Local) Provider() (storage.Provider, error) {
	return storage.NewFS(l.path)
}

// Sync never pulls. The fingerprint is always part of the revision so
// uncommitted edits in a checkout are picked up; the HEAD prefix makes a new
// commit count even when it leaves the working tree unchanged.
func (l *Local) Sync(ctx context.Context) (string, error) {
	fp, err := Fingerprint(l.path)
	if err != nil {
		return "", err
	}
	if l.puller != nil && isGitDir(l.path) {
		if head, err := l.puller.Head(ctx, l.path); err == nil {
			return head + "+" + fp, nil
		}
	}
	return fp, nil
}

// Fingerprint hashes the path, size and modification time of every regular
// file below root, skipping hidden entries.
func Fingerprint(root string) (string, error) {
	dg := digest.Canonical.Digester()
	h := dg.Hash()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("source: fingerprint %s: %w", root, err)
	}
	return "fp:" + dg.Digest().Encoded()[:16], nil
}

// Remote is a git repository cloned under a local directory.
type Remote struct {
	url      string
	subdir   string
	checkout string
	puller   Puller
	timeout  time.Duration
}

// NewRemote returns a remote source whose clone lives at
// reposDir/SlugForURL(url). timeout bounds each Sync; zero means no bound.
func NewRemote(url, subdir, reposDir string, puller Puller, timeout time.Duration) *Remote {
	return &Remote{
		url:      url,
		subdir:   subdir,
		checkout: filepath.Join(reposDir, SlugForURL(url)),
		puller:   puller,
		timeout:  timeout,
	}
}

func (r *Remote) ID() string        { return r.url }
func (r *Remote) Kind() Kind        { return KindRemote }
func (r *Remote) URL() string       { return r.url }
func (r *Remote) Checkout() string  { return r.checkout }
func (r *Remote) Subdir() string    { return r.subdir }
func (r *Remote) FlatOwner() string { return parser.InferOwner(r.url) }
func (r *Remote) CacheName() string { return SlugForURL(r.url) }
func (r *Remote) sealed()           {}

func (r *Remote) Provider() (storage.Provider, error) {
	return storage.NewFS(r.checkout)
}

func (r *Remote) Sync(ctx context.Context) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.puller.CloneOrPull(ctx, r.url, r.checkout); err != nil {
		return "", fmt.Errorf("source: pull %s: %w", r.url, err)
	}
	head, err := r.puller.Head(ctx, r.checkout)
	if err != nil {
		return "", fmt.Errorf("source: head %s: %w", r.url, err)
	}
	return head, nil
}
