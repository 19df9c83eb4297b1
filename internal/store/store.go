// Package store provides SQLite-backed persistence for city state: accounts,
// agents, buildings, parcels, ledger entries, events, and city metadata.
// The one primitive the simulation's correctness rests on is the conditional
// check-and-decrement debit in accounts.go.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for city state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// OpenMemory opens a throwaway in-memory database, used by tests. The pool
// is pinned to one connection: each in-memory connection is its own database.
func OpenMemory() (*DB, error) {
	db, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	db.conn.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Handle exposes the underlying connection for collaborating packages that
// own their own queries (the ledger engine).
func (db *DB) Handle() *sqlx.DB {
	return db.conn
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_kind TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		balance INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'open'
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ai_model TEXT NOT NULL DEFAULT '',
		profession TEXT NOT NULL,
		employer_id TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL,
		reputation INTEGER NOT NULL,
		hunger INTEGER NOT NULL,
		rest INTEGER NOT NULL,
		fun INTEGER NOT NULL,
		status TEXT NOT NULL,
		jailed_at_tick INTEGER NOT NULL DEFAULT 0,
		last_active_tick INTEGER NOT NULL DEFAULT 0,
		joined_tick INTEGER NOT NULL DEFAULT 0,
		api_key_hash TEXT NOT NULL DEFAULT '',
		stats_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		level INTEGER NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL,
		x INTEGER NOT NULL,
		z INTEGER NOT NULL,
		w INTEGER NOT NULL,
		d INTEGER NOT NULL,
		asset_key TEXT NOT NULL DEFAULT '',
		rot_y REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		accrued_upkeep INTEGER NOT NULL DEFAULT 0,
		created_tick INTEGER NOT NULL DEFAULT 0,
		employees_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS parcels (
		x INTEGER NOT NULL,
		z INTEGER NOT NULL,
		owner_id TEXT NOT NULL,
		bought_tick INTEGER NOT NULL,
		PRIMARY KEY (x, z)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		debit_account TEXT NOT NULL,
		credit_account TEXT NOT NULL,
		amount INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		tick INTEGER NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}',
		prev_hash TEXT NOT NULL,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_ledger_tick ON ledger_entries(tick);
	CREATE INDEX IF NOT EXISTS idx_agents_employer ON agents(employer_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMeta stores a key-value pair in city metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Returns "" without error when unset.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
