package storage

import (
	"database/sql"
	"errors"
	"time"
)

// IdentityRecord is the single-row identity table (spec.md §4.6).
type IdentityRecord struct {
	EncryptedBackup []byte
	DisplayName     string
	CreatedAt       time.Time
}

// SaveIdentity upserts the single identity row. EncryptedBackup is
// already an AEAD-wrapped backup blob (internal/identity.ExportBackup
// output); it is re-wrapped under the storage key so that the
// on-disk value is never readable without both the backup password
// and the device's storage key.
func (s *Store) SaveIdentity(rec IdentityRecord) error {
	sealed, err := s.seal(rec.EncryptedBackup)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO identity (id, encrypted_backup, display_name, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			encrypted_backup = excluded.encrypted_backup,
			display_name = excluded.display_name`,
		sealed, rec.DisplayName, unixMillis(rec.CreatedAt),
	)
	return err
}

// LoadIdentity returns the single identity row, or ErrNotFound if no
// identity has been saved yet.
func (s *Store) LoadIdentity() (*IdentityRecord, error) {
	var sealed []byte
	var displayName string
	var createdAt int64
	err := s.db.QueryRow(`SELECT encrypted_backup, display_name, created_at FROM identity WHERE id = 1`).
		Scan(&sealed, &displayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	backup, err := s.open(sealed)
	if err != nil {
		return nil, err
	}
	return &IdentityRecord{
		EncryptedBackup: backup,
		DisplayName:     displayName,
		CreatedAt:       fromUnixMillis(createdAt),
	}, nil
}
