package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades an archive created by an older schema to version.
type migration struct {
	version int
	stmt    string
}

// migrations are applied in order to archives whose user_version is below
// the migration's version. schema.sql holds only the base tables.
var migrations = []migration{
	{1, `CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at, id)`},
	{2, `CREATE INDEX IF NOT EXISTS idx_accounts_position ON accounts(run_id, position)`},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Store archives runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// dsn builds a go-sqlite3 connection string. The driver applies the
// parameters to every new connection.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

// Open creates or opens the archive at path and upgrades its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and the pragmas above are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect archive %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive %s: %w", path, err)
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

// migrate creates the base tables and applies pending migrations in one
// transaction.
func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	if _, err = tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}

	var version int
	if err = tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if _, err = tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("v%d: %w", m.version, err)
		}
	}
	if _, err = tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
