// Package registry provides the durable sandbox container registry.
//
// The registry is the system's record of which sandbox containers exist,
// which image they were created from, and which chat/agent session owns
// them. It is a cache over reality: containers can be removed out-of-band
// at any time, so readers must treat entries as claims to be reconciled
// against the runtime, not as truth.
package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Entry is one registered sandbox container. Name is the primary key and
// doubles as the runtime-level container name.
type Entry struct {
	Name         string
	Image        string
	SessionKey   string
	CreatedAtMs  int64
	LastUsedAtMs int64
}

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	name          TEXT PRIMARY KEY,
	image         TEXT NOT NULL,
	session_key   TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	last_used_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_containers_session ON containers(session_key);
`

// New opens (or creates) the registry database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	// SQLite is single-writer by design. Keep a single shared connection so
	// concurrent callers are serialized by database/sql instead of fighting
	// for write locks across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns all registry entries in insertion order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, image, session_key, created_at_ms, last_used_ms
		FROM containers
		ORDER BY created_at_ms, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Image, &e.SessionKey, &e.CreatedAtMs, &e.LastUsedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating containers: %w", err)
	}
	return entries, nil
}

// Get returns the entry for name, or (nil, nil) when it is not registered.
func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT name, image, session_key, created_at_ms, last_used_ms
		FROM containers
		WHERE name = ?
	`, name).Scan(&e.Name, &e.Image, &e.SessionKey, &e.CreatedAtMs, &e.LastUsedAtMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container %s: %w", name, err)
	}
	return &e, nil
}

// Put inserts or replaces the entry keyed by entry.Name.
func (s *Store) Put(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (name, image, session_key, created_at_ms, last_used_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			image         = excluded.image,
			session_key   = excluded.session_key,
			created_at_ms = excluded.created_at_ms,
			last_used_ms  = excluded.last_used_ms
	`, entry.Name, entry.Image, entry.SessionKey, entry.CreatedAtMs, entry.LastUsedAtMs)
	if err != nil {
		return fmt.Errorf("failed to put container %s: %w", entry.Name, err)
	}
	return nil
}

// Touch updates the last-used timestamp of an entry. Touching an entry that
// is not registered is a no-op.
func (s *Store) Touch(ctx context.Context, name string, lastUsedMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE containers SET last_used_ms = ? WHERE name = ?
	`, lastUsedMs, name)
	if err != nil {
		return fmt.Errorf("failed to touch container %s: %w", name, err)
	}
	return nil
}

// Remove deletes the entry for name. Removing an entry that does not exist
// is a no-op, not an error: the container may already have been pruned or
// deleted by another process.
func (s *Store) Remove(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM containers WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Count returns the number of registered containers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM containers").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count containers: %w", err)
	}
	return count, nil
}
