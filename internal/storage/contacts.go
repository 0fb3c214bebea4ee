package storage

import (
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/vauchi/core/internal/contact"
)

// SaveContact upserts a contact row, AEAD-wrapping the card, shared
// key, and visibility rules independently under the storage key
// (spec.md §4.6).
func (s *Store) SaveContact(c *contact.Contact) error {
	cardJSON, err := json.Marshal(c.Card)
	if err != nil {
		return err
	}
	sealedCard, err := s.seal(cardJSON)
	if err != nil {
		return err
	}
	sealedKey, err := s.seal(c.SharedKey[:])
	if err != nil {
		return err
	}
	rulesJSON, err := json.Marshal(c.Rules)
	if err != nil {
		return err
	}
	sealedRules, err := s.seal(rulesJSON)
	if err != nil {
		return err
	}

	verified := 0
	if c.Verified {
		verified = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO contacts (contact_id, peer_public_key, encrypted_card, encrypted_shared_key, exchanged_at, verified, encrypted_visibility_rules)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contact_id) DO UPDATE SET
			encrypted_card = excluded.encrypted_card,
			encrypted_shared_key = excluded.encrypted_shared_key,
			verified = excluded.verified,
			encrypted_visibility_rules = excluded.encrypted_visibility_rules`,
		c.ID.String(), []byte(c.PeerIdentityKey), sealedCard, sealedKey, unixMillis(c.ExchangedAt), verified, sealedRules,
	)
	return err
}

// LoadContact returns a single contact by id, or ErrNotFound.
func (s *Store) LoadContact(id uuid.UUID) (*contact.Contact, error) {
	row := s.db.QueryRow(`
		SELECT contact_id, peer_public_key, encrypted_card, encrypted_shared_key, exchanged_at, verified, encrypted_visibility_rules
		FROM contacts WHERE contact_id = ?`, id.String())
	return s.scanContact(row)
}

// ListContacts returns every stored contact.
func (s *Store) ListContacts() ([]*contact.Contact, error) {
	rows, err := s.db.Query(`
		SELECT contact_id, peer_public_key, encrypted_card, encrypted_shared_key, exchanged_at, verified, encrypted_visibility_rules
		FROM contacts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*contact.Contact
	for rows.Next() {
		c, err := s.scanContactRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanContact(row *sql.Row) (*contact.Contact, error) {
	c, err := s.scanContactRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) scanContactRow(row rowScanner) (*contact.Contact, error) {
	var idStr string
	var peerKey, sealedCard, sealedKey, sealedRules []byte
	var exchangedAt int64
	var verified int

	if err := row.Scan(&idStr, &peerKey, &sealedCard, &sealedKey, &exchangedAt, &verified, &sealedRules); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}

	cardJSON, err := s.open(sealedCard)
	if err != nil {
		return nil, err
	}
	var card contact.Card
	if err := json.Unmarshal(cardJSON, &card); err != nil {
		return nil, err
	}

	sharedKeyBytes, err := s.open(sealedKey)
	if err != nil {
		return nil, err
	}
	var sharedKey [32]byte
	copy(sharedKey[:], sharedKeyBytes)

	rulesJSON, err := s.open(sealedRules)
	if err != nil {
		return nil, err
	}
	rules := make(contact.RuleSet)
	if err := json.Unmarshal(rulesJSON, &rules); err != nil {
		return nil, err
	}

	return &contact.Contact{
		ID:              id,
		PeerIdentityKey: ed25519.PublicKey(peerKey),
		PeerDisplayName: card.DisplayName,
		Card:            &card,
		SharedKey:       sharedKey,
		ExchangedAt:     fromUnixMillis(exchangedAt),
		Verified:        verified != 0,
		Rules:           rules,
	}, nil
}

// DeleteContact removes a contact row. Callers are responsible for
// also clearing its contact_ratchets row.
func (s *Store) DeleteContact(id uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM contacts WHERE contact_id = ?`, id.String())
	return err
}
