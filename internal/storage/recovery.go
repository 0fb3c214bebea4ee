package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SaveRecoveryResponse upserts a recovery_responses row, keyed by the
// claim-id unique constraint (spec.md §4.6: "upserted on response").
func (s *Store) SaveRecoveryResponse(claimID string, encryptedResponse []byte, respondedAt time.Time) error {
	sealed, err := s.seal(encryptedResponse)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO recovery_responses (claim_id, encrypted_response, responded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (claim_id) DO UPDATE SET
			encrypted_response = excluded.encrypted_response,
			responded_at = excluded.responded_at`,
		claimID, sealed, unixMillis(respondedAt),
	)
	return err
}

// LoadRecoveryResponse returns a recovery response by claim-id, or
// ErrNotFound.
func (s *Store) LoadRecoveryResponse(claimID string) ([]byte, time.Time, error) {
	var sealed []byte
	var respondedAt int64
	err := s.db.QueryRow(`SELECT encrypted_response, responded_at FROM recovery_responses WHERE claim_id = ?`, claimID).
		Scan(&sealed, &respondedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := s.open(sealed)
	if err != nil {
		return nil, time.Time{}, err
	}
	return raw, fromUnixMillis(respondedAt), nil
}

// RecoveryRateLimit is one row of recovery_rate_limits, tracking how
// many claims a given old identity public key has initiated within
// the current rate-limit window.
type RecoveryRateLimit struct {
	IdentityPK  string
	Count       int
	WindowStart time.Time
}

// LoadRecoveryRateLimit returns the current window for an identity
// public key, or a zero-value window if none is recorded yet.
func (s *Store) LoadRecoveryRateLimit(identityPK string) (RecoveryRateLimit, error) {
	var count int
	var windowStart int64
	err := s.db.QueryRow(`SELECT count, window_start FROM recovery_rate_limits WHERE identity_pk = ?`, identityPK).
		Scan(&count, &windowStart)
	if errors.Is(err, sql.ErrNoRows) {
		return RecoveryRateLimit{IdentityPK: identityPK}, nil
	}
	if err != nil {
		return RecoveryRateLimit{}, err
	}
	return RecoveryRateLimit{IdentityPK: identityPK, Count: count, WindowStart: fromUnixMillis(windowStart)}, nil
}

// SaveRecoveryRateLimit upserts the rate-limit window for an identity
// public key.
func (s *Store) SaveRecoveryRateLimit(rl RecoveryRateLimit) error {
	_, err := s.db.Exec(`
		INSERT INTO recovery_rate_limits (identity_pk, count, window_start)
		VALUES (?, ?, ?)
		ON CONFLICT (identity_pk) DO UPDATE SET
			count = excluded.count,
			window_start = excluded.window_start`,
		rl.IdentityPK, rl.Count, unixMillis(rl.WindowStart),
	)
	return err
}
