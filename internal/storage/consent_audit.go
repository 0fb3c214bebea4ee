package storage

import (
	"database/sql"
	"errors"
	"time"
)

// AppendConsentRecord appends an append-only consent event for a
// contact (spec.md §4.6: "append-only, latest-by-timestamp semantics
// for consent queries").
func (s *Store) AppendConsentRecord(contactID, event string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO consent_records (contact_id, event, created_at) VALUES (?, ?, ?)`,
		contactID, event, unixMillis(at))
	return err
}

// LatestConsent returns the most recent consent event recorded for a
// contact, or "" if none exists.
func (s *Store) LatestConsent(contactID string) (string, error) {
	var event string
	err := s.db.QueryRow(`
		SELECT event FROM consent_records WHERE contact_id = ? ORDER BY created_at DESC LIMIT 1`, contactID).
		Scan(&event)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return event, nil
}

// AppendAuditLog appends an audit_log entry. Audit entries are never
// updated or deleted.
func (s *Store) AppendAuditLog(event, detail string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, detail, unixMillis(at))
	return err
}
