package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database from version-1 to version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on databases whose user_version is below their
// version. schema.sql already contains their end state, so each statement
// must be a no-op on a fresh database.
var migrations = []migration{
	{
		version: 1,
		name:    "per-page run index",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_runs_page_seq ON runs(page_id, seq)`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Store holds the conflict snapshots and run history of synced pages.
// A Store serializes all access through one connection, so it may be
// shared between goroutines.
type Store struct {
	db *sql.DB
}

// pragmas are applied on every Open, in order.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Open opens the history database at path, creating it if needed, and
// brings its schema up to date. ":memory:" gives a private in-memory
// database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %q: %w", stmt, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies every pending migration, each in its own transaction
// together with its user_version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		slog.Debug("store migrated", "version", m.version, "migration", m.name)
		version = m.version
	}
	return nil
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
