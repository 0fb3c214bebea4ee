package relay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBlobStore persists queued envelopes across relay restarts,
// grounded on internal/storage.Store's single-writer SQLite pattern
// (store.go: SetMaxOpenConns(1), WAL journal mode) adapted here to an
// unencrypted blob-queue schema — relay envelopes are already
// end-to-end ciphertext from the sender, so the relay has no storage
// key to wrap them under.
type SQLiteBlobStore struct {
	db *sql.DB
}

const sqliteBlobSchema = `
CREATE TABLE IF NOT EXISTS relay_blobs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient_id TEXT NOT NULL,
	envelope     BLOB NOT NULL,
	stored_at    INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_blobs_recipient ON relay_blobs(recipient_id, id);
`

// OpenSQLiteBlobStore opens (creating if absent) a SQLite-backed blob
// store at path.
func OpenSQLiteBlobStore(path string) (*SQLiteBlobStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("relay: open sqlite blob store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("relay: ping sqlite blob store: %w", err)
	}
	if _, err := db.Exec(sqliteBlobSchema); err != nil {
		return nil, fmt.Errorf("relay: migrate sqlite blob store: %w", err)
	}
	return &SQLiteBlobStore{db: db}, nil
}

func (s *SQLiteBlobStore) Close() error { return s.db.Close() }

func (s *SQLiteBlobStore) Put(ctx context.Context, recipientID string, envelope []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_blobs (recipient_id, envelope, stored_at, expires_at) VALUES (?, ?, ?, ?)`,
		recipientID, envelope, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("relay: put blob: %w", err)
	}
	return nil
}

func (s *SQLiteBlobStore) TakeFor(ctx context.Context, recipientID string) ([]Blob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: begin take: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, envelope, stored_at, expires_at FROM relay_blobs WHERE recipient_id = ? ORDER BY id ASC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("relay: query blobs: %w", err)
	}

	var blobs []Blob
	var ids []int64
	for rows.Next() {
		var id, storedAt, expiresAt int64
		var envelope []byte
		if err := rows.Scan(&id, &envelope, &storedAt, &expiresAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("relay: scan blob: %w", err)
		}
		ids = append(ids, id)
		blobs = append(blobs, Blob{
			RecipientID: recipientID,
			Envelope:    envelope,
			StoredAt:    time.UnixMilli(storedAt),
			ExpiresAt:   time.UnixMilli(expiresAt),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay: iterate blobs: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relay_blobs WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("relay: delete taken blob: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("relay: commit take: %w", err)
	}
	return blobs, nil
}

func (s *SQLiteBlobStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relay_blobs WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("relay: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("relay: sweep rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteBlobStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relay_blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("relay: count: %w", err)
	}
	return n, nil
}
