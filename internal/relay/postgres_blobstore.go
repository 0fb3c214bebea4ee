package relay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresBlobStore is a [EXPANSION] BlobStore backend for relay
// deployments that run more than one instance behind a load balancer:
// SQLite's single-writer model doesn't fit a multi-process relay
// fleet, so a horizontally-scaled deployment needs the same shared
// Postgres the teacher's chat servers use (internal/db.PostgresDB:
// pooled connections, one schema shared by every instance) rather
// than a per-instance SQLite file.
type PostgresBlobStore struct {
	db *sql.DB
}

const postgresBlobSchema = `
CREATE TABLE IF NOT EXISTS relay_blobs (
	id           BIGSERIAL PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	envelope     BYTEA NOT NULL,
	stored_at    TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_blobs_recipient ON relay_blobs(recipient_id, id);
`

// OpenPostgresBlobStore connects to a shared Postgres instance,
// mirroring internal/db.NewPostgresDB's pool sizing.
func OpenPostgresBlobStore(connStr string) (*PostgresBlobStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("relay: open postgres blob store: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("relay: ping postgres blob store: %w", err)
	}
	if _, err := db.Exec(postgresBlobSchema); err != nil {
		return nil, fmt.Errorf("relay: migrate postgres blob store: %w", err)
	}
	return &PostgresBlobStore{db: db}, nil
}

func (p *PostgresBlobStore) Close() error { return p.db.Close() }

func (p *PostgresBlobStore) Put(ctx context.Context, recipientID string, envelope []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO relay_blobs (recipient_id, envelope, stored_at, expires_at) VALUES ($1, $2, $3, $4)`,
		recipientID, envelope, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("relay: put blob: %w", err)
	}
	return nil
}

func (p *PostgresBlobStore) TakeFor(ctx context.Context, recipientID string) ([]Blob, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: begin take: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, envelope, stored_at, expires_at FROM relay_blobs WHERE recipient_id = $1 ORDER BY id ASC`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("relay: query blobs: %w", err)
	}

	var blobs []Blob
	var ids []int64
	for rows.Next() {
		var id int64
		var envelope []byte
		var storedAt, expiresAt time.Time
		if err := rows.Scan(&id, &envelope, &storedAt, &expiresAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("relay: scan blob: %w", err)
		}
		ids = append(ids, id)
		blobs = append(blobs, Blob{RecipientID: recipientID, Envelope: envelope, StoredAt: storedAt, ExpiresAt: expiresAt})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay: iterate blobs: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relay_blobs WHERE id = $1`, id); err != nil {
			return nil, fmt.Errorf("relay: delete taken blob: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("relay: commit take: %w", err)
	}
	return blobs, nil
}

func (p *PostgresBlobStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM relay_blobs WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("relay: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("relay: sweep rows affected: %w", err)
	}
	return int(n), nil
}

func (p *PostgresBlobStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relay_blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("relay: count: %w", err)
	}
	return n, nil
}
