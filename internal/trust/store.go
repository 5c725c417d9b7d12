// Package trust records trusted registries and pinned skill content hashes in
// SQLite and classifies skills against them.
package trust

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joshrotenberg/skillet/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trusted_registries (
	registry   TEXT PRIMARY KEY,
	note       TEXT NOT NULL DEFAULT '',
	trusted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pinned_skills (
	owner        TEXT NOT NULL,
	name         TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '',
	registry     TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	pinned_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (owner, name)
);
`

// TrustedRegistry is a registry the user has marked trusted.
type TrustedRegistry struct {
	Registry  string    `json:"registry"`
	Note      string    `json:"note,omitempty"`
	TrustedAt time.Time `json:"trusted_at"`
}

// PinnedSkill is a recorded content hash for one skill.
type PinnedSkill struct {
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Registry    string    `json:"registry"`
	ContentHash string    `json:"content_hash"`
	PinnedAt    time.Time `json:"pinned_at"`
}

// Store is the SQLite-backed trust database.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the trust database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("trust: create dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("trust: open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("trust: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("trust: apply schema: %w", err)
	}
	return &Store{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// TrustRegistry marks registry as trusted. Trusting an already trusted
// registry keeps the original record.
func (s *Store) TrustRegistry(registry, note string) error {
	_, err := s.conn.Exec(`
		INSERT INTO trusted_registries (registry, note, trusted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(registry) DO NOTHING
	`, registry, note, s.now().UTC())
	if err != nil {
		return fmt.Errorf("trust: add registry: %w", err)
	}
	return nil
}

// UntrustRegistry removes registry. It returns apperr.ErrNotFound when the
// registry was not trusted.
func (s *Store) UntrustRegistry(registry string) error {
	res, err := s.conn.Exec(`DELETE FROM trusted_registries WHERE registry = ?`, registry)
	if err != nil {
		return fmt.Errorf("trust: remove registry: %w", err)
	}
	return requireAffected(res, "registry "+registry)
}

// IsTrusted reports whether registry is trusted.
func (s *Store) IsTrusted(registry string) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM trusted_registries WHERE registry = ?`, registry).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("trust: is trusted: %w", err)
	}
	return n > 0, nil
}

// ListRegistries returns trusted registries ordered by name.
func (s *Store) ListRegistries() ([]TrustedRegistry, error) {
	rows, err := s.conn.Query(`SELECT registry, note, trusted_at FROM trusted_registries ORDER BY registry`)
	if err != nil {
		return nil, fmt.Errorf("trust: list registries: %w", err)
	}
	defer rows.Close()

	var out []TrustedRegistry
	for rows.Next() {
		var r TrustedRegistry
		if err := rows.Scan(&r.Registry, &r.Note, &r.TrustedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Pin records p, replacing any existing pin for the same skill. A zero
// PinnedAt is set to the current time.
func (s *Store) Pin(p PinnedSkill) (PinnedSkill, error) {
	if p.PinnedAt.IsZero() {
		p.PinnedAt = s.now().UTC()
	}
	_, err := s.conn.Exec(`
		INSERT INTO pinned_skills (owner, name, version, registry, content_hash, pinned_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, name) DO UPDATE SET
			version      = excluded.version,
			registry     = excluded.registry,
			content_hash = excluded.content_hash,
			pinned_at    = excluded.pinned_at
	`, p.Owner, p.Name, p.Version, p.Registry, p.ContentHash, p.PinnedAt)
	if err != nil {
		return PinnedSkill{}, fmt.Errorf("trust: pin: %w", err)
	}
	return p, nil
}

// Unpin removes the pin for owner/name. It returns apperr.ErrNotFound when
// no pin exists.
func (s *Store) Unpin(owner, name string) error {
	res, err := s.conn.Exec(`DELETE FROM pinned_skills WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return fmt.Errorf("trust: unpin: %w", err)
	}
	return requireAffected(res, "pin "+owner+"/"+name)
}

// FindPin returns the pin for owner/name, or nil when the skill is not pinned.
func (s *Store) FindPin(owner, name string) (*PinnedSkill, error) {
	var p PinnedSkill
	err := s.conn.QueryRow(`
		SELECT owner, name, version, registry, content_hash, pinned_at
		FROM pinned_skills WHERE owner = ? AND name = ?
	`, owner, name).Scan(&p.Owner, &p.Name, &p.Version, &p.Registry, &p.ContentHash, &p.PinnedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: find pin: %w", err)
	}
	return &p, nil
}

// ListPins returns every pin ordered by owner, then name.
func (s *Store) ListPins() ([]PinnedSkill, error) {
	rows, err := s.conn.Query(`
		SELECT owner, name, version, registry, content_hash, pinned_at
		FROM pinned_skills ORDER BY owner, name
	`)
	if err != nil {
		return nil, fmt.Errorf("trust: list pins: %w", err)
	}
	defer rows.Close()

	var out []PinnedSkill
	for rows.Next() {
		var p PinnedSkill
		if err := rows.Scan(&p.Owner, &p.Name, &p.Version, &p.Registry, &p.ContentHash, &p.PinnedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("trust: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trust: %s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
