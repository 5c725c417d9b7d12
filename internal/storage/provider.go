// Package storage defines read access to a skill registry tree.
package storage

import "io/fs"

// Provider is the interface for registry file access. Paths are
// slash-separated and relative to the registry root.
type Provider interface {
	// ReadDir returns the entries of dir sorted by name.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// FS exposes the tree as an fs.FS for pattern matching.
	FS() fs.FS
}

// Exists reports whether path exists and is a regular file.
func Exists(p Provider, path string) bool {
	info, err := p.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether path exists and is a directory.
func IsDir(p Provider, path string) bool {
	info, err := p.Stat(path)
	return err == nil && info.IsDir()
}
