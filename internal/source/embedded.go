package source

import (
	"context"
	"embed"
	"io/fs"
	"sync"

	"github.com/joshrotenberg/skillet/internal/checksum"
	"github.com/joshrotenberg/skillet/internal/storage"
)

//go:embed all:defaults
var defaultsFS embed.FS

const defaultsDir = "defaults"

// Embedded serves the default registry compiled into the binary. Its
// revision never changes within a build.
type Embedded struct {
	fsys fs.FS
	dir  string

	once sync.Once
	rev  string
	err  error
}

// NewEmbedded returns the built-in default registry.
func NewEmbedded() *Embedded {
	return &Embedded{fsys: defaultsFS, dir: defaultsDir}
}

// NewEmbeddedFS serves dir of fsys as an embedded registry.
func NewEmbeddedFS(fsys fs.FS, dir string) *Embedded {
	return &Embedded{fsys: fsys, dir: dir}
}

func (e *Embedded) ID() string        { return EmbeddedID }
func (e *Embedded) Kind() Kind        { return KindEmbedded }
func (e *Embedded) Subdir() string    { return "" }
func (e *Embedded) FlatOwner() string { return "skillet" }
func (e *Embedded) CacheName() string { return "embedded_defaults" }
func (e *Embedded) sealed()           {}

func (e *Embedded) Provider() (storage.Provider, error) {
	return storage.NewEmbedded(e.fsys, e.dir)
}

// Sync returns a digest over every embedded file, computed once.
func (e *Embedded) Sync(context.Context) (string, error) {
	e.once.Do(func() {
		var all []byte
		e.err = fs.WalkDir(e.fsys, e.dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			data, err := fs.ReadFile(e.fsys, p)
			if err != nil {
				return err
			}
			all = append(all, p...)
			all = append(all, 0)
			all = append(all, checksum.Sum(data)...)
			all = append(all, '\n')
			return nil
		})
		if e.err == nil {
			e.rev = checksum.Sum(all)
		}
	})
	return e.rev, e.err
}
