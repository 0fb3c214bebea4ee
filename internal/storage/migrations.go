package storage

import (
	"database/sql"
	"fmt"
)

// migration is one numbered schema change, applied in order inside a
// single transaction (spec.md §4.6: "startup runs missing migrations
// in order inside a single transaction; failure rolls back").
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS identity (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				encrypted_backup BLOB NOT NULL,
				display_name TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS contacts (
				contact_id TEXT PRIMARY KEY,
				peer_public_key BLOB NOT NULL,
				encrypted_card BLOB NOT NULL,
				encrypted_shared_key BLOB NOT NULL,
				exchanged_at INTEGER NOT NULL,
				verified INTEGER NOT NULL,
				encrypted_visibility_rules BLOB NOT NULL
			);

			CREATE TABLE IF NOT EXISTS contact_ratchets (
				contact_id TEXT NOT NULL REFERENCES contacts(contact_id),
				encrypted_ratchet_state BLOB NOT NULL,
				is_initiator INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (contact_id)
			);

			CREATE TABLE IF NOT EXISTS pending_updates (
				update_id TEXT PRIMARY KEY,
				contact_id TEXT NOT NULL REFERENCES contacts(contact_id),
				update_type TEXT NOT NULL,
				encrypted_payload BLOB NOT NULL,
				created_at INTEGER NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS consent_records (
				contact_id TEXT NOT NULL,
				event TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_consent_records_contact ON consent_records(contact_id, created_at);

			CREATE TABLE IF NOT EXISTS audit_log (
				sequence INTEGER PRIMARY KEY AUTOINCREMENT,
				event TEXT NOT NULL,
				detail TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS recovery_responses (
				claim_id TEXT PRIMARY KEY,
				encrypted_response BLOB NOT NULL,
				responded_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS recovery_rate_limits (
				identity_pk TEXT PRIMARY KEY,
				count INTEGER NOT NULL,
				window_start INTEGER NOT NULL
			);
		`,
	},
}

// runMigrations applies any migration whose version is not yet
// recorded in schema_version, in order, inside a single transaction.
// A failure anywhere rolls back the whole batch (spec.md §4.6).
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("%w: create schema_version: %v", ErrMigration, err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_version`)
	if err != nil {
		return fmt.Errorf("%w: read schema_version: %v", ErrMigration, err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan schema_version: %v", ErrMigration, err)
		}
		applied[v] = true
	}
	rows.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrMigration, err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigration, m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("%w: record version %d: %v", ErrMigration, m.version, err)
		}
	}

	return tx.Commit()
}
