package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vauchi/core/internal/ratchet"
)

// SaveRatchet upserts the ratchet state for a contact.
func (s *Store) SaveRatchet(contactID uuid.UUID, session *ratchet.Session, isInitiator bool, updatedAt time.Time) error {
	sealed, err := s.seal(session.Marshal())
	if err != nil {
		return err
	}
	initiator := 0
	if isInitiator {
		initiator = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO contact_ratchets (contact_id, encrypted_ratchet_state, is_initiator, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (contact_id) DO UPDATE SET
			encrypted_ratchet_state = excluded.encrypted_ratchet_state,
			updated_at = excluded.updated_at`,
		contactID.String(), sealed, initiator, unixMillis(updatedAt),
	)
	return err
}

// LoadRatchet returns the ratchet session for a contact, or ErrNotFound.
func (s *Store) LoadRatchet(contactID uuid.UUID) (*ratchet.Session, bool, error) {
	var sealed []byte
	var initiator int
	err := s.db.QueryRow(`
		SELECT encrypted_ratchet_state, is_initiator FROM contact_ratchets WHERE contact_id = ?`,
		contactID.String(),
	).Scan(&sealed, &initiator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	raw, err := s.open(sealed)
	if err != nil {
		return nil, false, err
	}
	session, err := ratchet.Unmarshal(raw)
	if err != nil {
		return nil, false, err
	}
	return session, initiator != 0, nil
}
