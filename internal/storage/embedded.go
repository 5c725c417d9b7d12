package storage

import (
	"fmt"
	"io/fs"
	"path"
)

// Embedded implements Provider over a read-only fs.FS, typically an
// embed.FS compiled into the binary.
type Embedded struct {
	fsys fs.FS
}

// NewEmbedded wraps fsys, scoped to dir when dir is non-empty.
func NewEmbedded(fsys fs.FS, dir string) (*Embedded, error) {
	if dir != "" && dir != "." {
		sub, err := fs.Sub(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("storage: sub %s: %w", dir, err)
		}
		fsys = sub
	}
	return &Embedded{fsys: fsys}, nil
}

func clean(p string) (string, error) {
	if p == "" {
		return ".", nil
	}
	c := path.Clean(p)
	if !fs.ValidPath(c) {
		return "", fmt.Errorf("storage: invalid path: %s", p)
	}
	return c, nil
}

// ReadDir lists a directory.
func (e *Embedded) ReadDir(dir string) ([]fs.DirEntry, error) {
	p, err := clean(dir)
	if err != nil {
		return nil, err
	}
	return fs.ReadDir(e.fsys, p)
}

// Read returns the raw bytes of a file.
func (e *Embedded) Read(name string) ([]byte, error) {
	p, err := clean(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(e.fsys, p)
}

// Stat returns file info for name.
func (e *Embedded) Stat(name string) (fs.FileInfo, error) {
	p, err := clean(name)
	if err != nil {
		return nil, err
	}
	return fs.Stat(e.fsys, p)
}

// FS returns the wrapped file system.
func (e *Embedded) FS() fs.FS {
	return e.fsys
}
