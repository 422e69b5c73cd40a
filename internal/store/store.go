// Package store persists system state to SQLite: an opaque JSON key-value
// table for snapshots and an append-only table mirroring the trust chain.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"swarmgov/internal/logging"
	"swarmgov/internal/trust"
)

// ErrKeyNotFound is returned by Load for a key with no saved value.
var ErrKeyNotFound = errors.New("key not found")

// Store wraps one SQLite database. Safe for concurrent use; writes are
// serialized through a single connection.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open creates or opens the database at path and prepares the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	log := logging.Get(logging.CategoryStore)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("store opened at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trust_entries (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			agent_id      TEXT NOT NULL,
			action        TEXT NOT NULL,
			payload       TEXT,
			timestamp     TEXT NOT NULL,
			previous_hash TEXT,
			current_hash  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trust_agent ON trust_entries(agent_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save serializes the value to JSON and upserts it under the key.
func (s *Store) Save(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}

	_, err = s.db.Exec(`INSERT INTO snapshots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}

	s.log.Debug("saved %q (%d bytes)", key, len(data))
	return nil
}

// Load decodes the JSON stored under key into out. Returns ErrKeyNotFound
// when nothing was saved for the key.
func (s *Store) Load(key string, out interface{}) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM snapshots WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("load %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode value for %q: %w", key, err)
	}
	return nil
}

// Keys returns every saved snapshot key, sorted.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM snapshots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AppendTrustEntries persists chain entries not yet stored. Entries already
// present, identified by id, are skipped so repeated syncs are idempotent.
func (s *Store) AppendTrustEntries(entries []trust.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("append trust entries: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		payload := ""
		if e.Payload != nil {
			payload = string(e.Payload)
		}
		_, err := tx.Exec(`INSERT OR IGNORE INTO trust_entries
			(id, agent_id, action, payload, timestamp, previous_hash, current_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.AgentID, e.Action, payload,
			e.Timestamp.UTC().Format(time.RFC3339Nano), e.PreviousHash, e.CurrentHash)
		if err != nil {
			return fmt.Errorf("append trust entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTrustEntries returns the persisted chain in insertion order.
func (s *Store) LoadTrustEntries() ([]trust.Entry, error) {
	rows, err := s.db.Query(`SELECT id, agent_id, action, payload, timestamp, previous_hash, current_hash
		FROM trust_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load trust entries: %w", err)
	}
	defer rows.Close()

	var entries []trust.Entry
	for rows.Next() {
		var e trust.Entry
		var payload, ts string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Action, &payload, &ts, &e.PreviousHash, &e.CurrentHash); err != nil {
			return nil, err
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp for entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
