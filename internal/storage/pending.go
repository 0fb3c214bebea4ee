package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PendingUpdateStatus is the persisted status JSON for a pending_updates
// row (spec.md §4.7: Pending/InFlight/Failed{reason, retry_at}).
type PendingUpdateStatus struct {
	State    string    `json:"state"` // "pending" | "in_flight" | "failed"
	Reason   string    `json:"reason,omitempty"`
	RetryAt  time.Time `json:"retry_at,omitempty"`
}

// PendingUpdateRecord is one row of the pending_updates table.
type PendingUpdateRecord struct {
	UpdateID         uuid.UUID
	ContactID        uuid.UUID
	UpdateType       string
	EncryptedPayload []byte // already AEAD-sealed by the caller under the ratchet session key
	CreatedAt        time.Time
	RetryCount       int
	Status           PendingUpdateStatus
}

// SaveOrUpdatePendingUpdate upserts a pending_updates row. The payload
// is re-wrapped under the storage key, on top of whatever sealing the
// sync engine already applied at the ratchet layer.
func (s *Store) SaveOrUpdatePendingUpdate(rec PendingUpdateRecord) error {
	sealed, err := s.seal(rec.EncryptedPayload)
	if err != nil {
		return err
	}
	statusJSON, err := json.Marshal(rec.Status)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO pending_updates (update_id, contact_id, update_type, encrypted_payload, created_at, retry_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (update_id) DO UPDATE SET
			retry_count = excluded.retry_count,
			status = excluded.status`,
		rec.UpdateID.String(), rec.ContactID.String(), rec.UpdateType, sealed,
		unixMillis(rec.CreatedAt), rec.RetryCount, string(statusJSON),
	)
	return err
}

// TakeNextPending returns pending_updates rows whose status is
// "pending" or whose "failed" retry_at has elapsed, in FIFO creation
// order (spec.md §4.7: take_next()).
func (s *Store) TakeNextPending(now time.Time, limit int) ([]PendingUpdateRecord, error) {
	rows, err := s.db.Query(`
		SELECT update_id, contact_id, update_type, encrypted_payload, created_at, retry_count, status
		FROM pending_updates
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingUpdateRecord
	for rows.Next() {
		rec, err := scanPendingRow(s, rows)
		if err != nil {
			return nil, err
		}
		if rec.Status.State == "in_flight" {
			continue
		}
		if rec.Status.State == "failed" && rec.Status.RetryAt.After(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPendingRow(s *Store, rows *sql.Rows) (PendingUpdateRecord, error) {
	var updateIDStr, contactIDStr, updateType, statusJSON string
	var sealed []byte
	var createdAt int64
	var retryCount int

	if err := rows.Scan(&updateIDStr, &contactIDStr, &updateType, &sealed, &createdAt, &retryCount, &statusJSON); err != nil {
		return PendingUpdateRecord{}, err
	}
	updateID, err := uuid.Parse(updateIDStr)
	if err != nil {
		return PendingUpdateRecord{}, err
	}
	contactID, err := uuid.Parse(contactIDStr)
	if err != nil {
		return PendingUpdateRecord{}, err
	}
	payload, err := s.open(sealed)
	if err != nil {
		return PendingUpdateRecord{}, err
	}
	var status PendingUpdateStatus
	if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
		return PendingUpdateRecord{}, err
	}
	return PendingUpdateRecord{
		UpdateID:         updateID,
		ContactID:        contactID,
		UpdateType:       updateType,
		EncryptedPayload: payload,
		CreatedAt:        fromUnixMillis(createdAt),
		RetryCount:       retryCount,
		Status:           status,
	}, nil
}

// DeletePendingUpdate removes a row on ack.
func (s *Store) DeletePendingUpdate(id uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM pending_updates WHERE update_id = ?`, id.String())
	return err
}

// ErrPendingUpdateNotFound names a pending update id that has already
// been acked/deleted. DeletePendingUpdate does not return it: deleting
// an absent id succeeds.
var ErrPendingUpdateNotFound = errors.New("storage: pending update not found")
