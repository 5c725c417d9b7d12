// Package cache persists per-source index snapshots on disk so a restart can
// serve the last known registry before the first pull completes.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/joshrotenberg/skillet/internal/models"
)

// Version is the cache document format version. Files with any other
// version are ignored.
const Version = 1

// Source names the cache file for one content source.
type Source interface {
	CacheName() string
}

// State classifies a cache lookup.
type State int

const (
	Absent State = iota
	Stale
	Fresh
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Result is the outcome of Load. Index and Revision are set for Fresh and
// Stale. Err explains why a file that exists was treated as Absent.
type Result struct {
	State    State
	Index    *models.SkillIndex
	Revision string
	CachedAt time.Time
	Err      error
}

type document struct {
	Version    int                  `json:"version"`
	Revision   string               `json:"revision,omitempty"`
	CachedAt   int64                `json:"cached_at"`
	Skills     []*models.SkillEntry `json:"skills"`
	Categories map[string]int       `json:"categories"`
}

// Path returns the cache file for src under dir.
func Path(dir string, src Source) string {
	return filepath.Join(dir, src.CacheName()+".json")
}

// Load reads the cache for src. A missing, corrupt or version-mismatched file
// is Absent. A file older than ttl is Stale; ttl 0 never expires.
func Load(dir string, src Source, ttl time.Duration, now time.Time) Result {
	path := Path(dir, src)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Result{State: Absent}
	}

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return Result{State: Absent, Err: fmt.Errorf("cache: lock: %w", err)}
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{State: Absent}
	}
	if err != nil {
		return Result{State: Absent, Err: fmt.Errorf("cache: read: %w", err)}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{State: Absent, Err: fmt.Errorf("cache: corrupt %s: %w", path, err)}
	}
	if doc.Version != Version {
		return Result{State: Absent, Err: fmt.Errorf("cache: version %d, want %d", doc.Version, Version)}
	}

	idx := models.NewSkillIndex()
	for _, e := range doc.Skills {
		if e == nil || e.Owner == "" || e.Name == "" {
			return Result{State: Absent, Err: fmt.Errorf("cache: corrupt %s: entry without key", path)}
		}
		idx.Skills[e.Key()] = e
	}
	if doc.Categories != nil {
		idx.Categories = doc.Categories
	}

	res := Result{
		State:    Fresh,
		Index:    idx,
		Revision: doc.Revision,
		CachedAt: time.Unix(doc.CachedAt, 0),
	}
	if ttl > 0 && now.Sub(res.CachedAt) > ttl {
		res.State = Stale
	}
	return res
}

// Write stores idx and the revision it was built from. The file is replaced
// atomically under an exclusive lock.
func Write(dir string, src Source, revision string, idx *models.SkillIndex, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	path := Path(dir, src)

	doc := document{
		Version:    Version,
		Revision:   revision,
		CachedAt:   now.Unix(),
		Skills:     idx.Entries(),
		Categories: idx.Categories,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("cache: lock: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(dir, ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	tmpName = ""
	return nil
}
