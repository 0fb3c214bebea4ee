// Package storage is the encrypted-at-rest record store (spec.md §4.6),
// a SQLite-backed reworking of the teacher's internal/db.PostgresDB:
// a thin wrapper struct around *sql.DB, one method per logical
// operation, connection-pool tuning in the constructor. Every
// encrypted_* blob column is AEAD-wrapped under the process-wide storage key before
// Exec/Scan.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vauchi/core/internal/crypto"
)

// Store wraps the local SQLite connection and the storage key used to
// wrap every encrypted blob column.
type Store struct {
	db         *sql.DB
	storageKey [32]byte
}

// Open opens (creating if absent) the SQLite file at path and runs any
// pending migrations. storageKey wraps every encrypted blob column;
// spec.md §4.6 requires only that it be 32 bytes, derived by the
// caller from a fixed device secret.
func Open(path string, storageKey [32]byte) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	// A single SQLite file supports one writer at a time; unlike the
	// teacher's pooled Postgres connection, concurrency here is
	// achieved via WAL mode readers plus a single shared connection,
	// not a larger pool.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, storageKey: storageKey}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying *sql.DB, for callers (e.g. audit
// tooling) that need direct access.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	return crypto.Encrypt(s.storageKey[:], plaintext)
}

func (s *Store) open(ciphertext []byte) ([]byte, error) {
	return crypto.Decrypt(s.storageKey[:], ciphertext)
}

func unixMillis(t time.Time) int64 { return t.UnixMilli() }

func fromUnixMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
