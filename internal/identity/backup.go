package identity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vauchi/core/internal/crypto"
)

// backupMagic identifies the current backup wire format: magic "VBK1"
// ‖ salt(16) ‖ ciphertext (spec.md §6).
var backupMagic = [4]byte{'V', 'B', 'K', '1'}

// ExportBackup serializes the identity's master seed, display name, and
// device records, encrypts them under an Argon2id key derived from
// password, and frames the result per spec.md §4.3/§6.
func ExportBackup(id *Identity, password string) ([]byte, error) {
	if _, err := ValidatePassword(password); err != nil {
		return nil, err
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("identity: export backup: %w", err)
	}
	key := crypto.DeriveKeyArgon2id([]byte(password), salt)

	plaintext := marshalBackupState(id)
	ciphertext, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("identity: export backup: %w", err)
	}

	out := make([]byte, 0, 4+len(salt)+len(ciphertext))
	out = append(out, backupMagic[:]...)
	out = append(out, salt...)
	out = append(out, ciphertext...)
	return out, nil
}

// ImportBackup is the inverse of ExportBackup. A current-format backup
// (magic "VBK1") is opened with Argon2id; anything else is treated as a
// pre-versioning backup (bare salt ‖ ciphertext, no magic) and opened
// with PBKDF2, matching the legacy key-derivation path
// original_source/vauchi-core/src/crypto/password_kdf.rs supports for
// importing older exports. Authentication failure under either path
// returns ErrInvalidPassword.
func ImportBackup(data []byte, password string) (*Identity, error) {
	const saltLen = 16
	isCurrent := len(data) >= 4 && bytes.Equal(data[:4], backupMagic[:])

	var salt, body []byte
	var key []byte
	if isCurrent {
		if len(data) < 4+saltLen {
			return nil, fmt.Errorf("%w: truncated backup", ErrCorruptBackup)
		}
		salt = data[4 : 4+saltLen]
		body = data[4+saltLen:]
		key = crypto.DeriveKeyArgon2id([]byte(password), salt)
	} else {
		if len(data) < saltLen {
			return nil, fmt.Errorf("%w: truncated legacy backup", ErrCorruptBackup)
		}
		salt = data[:saltLen]
		body = data[saltLen:]
		key = crypto.DeriveKeyPBKDF2([]byte(password), salt, crypto.PBKDF2Iterations)
	}

	plaintext, err := crypto.Decrypt(key, body)
	if err != nil {
		return nil, ErrInvalidPassword
	}

	seed, displayName, devices, err := unmarshalBackupState(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBackup, err)
	}

	id, err := fromMasterSeed(seed, displayName)
	if err != nil {
		return nil, err
	}
	id.Devices.restoreRecords(devices)
	return id, nil
}

// marshalBackupState renders the master seed, display name, and device
// records into a deterministic plaintext buffer.
func marshalBackupState(id *Identity) []byte {
	var buf bytes.Buffer
	buf.Write(id.MasterSeed[:])

	name := []byte(id.DisplayName)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(name)))
	buf.Write(name)

	records := id.Devices.Records()
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(records)))
	for _, rec := range records {
		_ = binary.Write(&buf, binary.BigEndian, rec.Index)
		nameBytes := []byte(rec.Name)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(nameBytes)))
		buf.Write(nameBytes)
		buf.Write(rec.DeviceID[:])
		buf.Write(rec.PublicKey)
		if rec.Active {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(rec.Signature)))
		buf.Write(rec.Signature)
	}
	return buf.Bytes()
}

func unmarshalBackupState(data []byte) (seed [32]byte, displayName string, devices []*DeviceRecord, err error) {
	r := bytes.NewReader(data)

	if _, err = io.ReadFull(r, seed[:]); err != nil {
		return seed, "", nil, errors.New("truncated master seed")
	}

	var nameLen uint32
	if err = binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return seed, "", nil, errors.New("truncated display name length")
	}
	nameBytes := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nameBytes); err != nil {
		return seed, "", nil, errors.New("truncated display name")
	}
	displayName = string(nameBytes)

	var count uint32
	if err = binary.Read(r, binary.BigEndian, &count); err != nil {
		return seed, "", nil, errors.New("truncated device count")
	}
	if count > MaxActiveDevices*2 {
		return seed, "", nil, errors.New("implausible device count")
	}

	devices = make([]*DeviceRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := &DeviceRecord{}
		if err = binary.Read(r, binary.BigEndian, &rec.Index); err != nil {
			return seed, "", nil, errors.New("truncated device index")
		}
		var recNameLen uint32
		if err = binary.Read(r, binary.BigEndian, &recNameLen); err != nil {
			return seed, "", nil, errors.New("truncated device name length")
		}
		recNameBytes := make([]byte, recNameLen)
		if _, err = io.ReadFull(r, recNameBytes); err != nil {
			return seed, "", nil, errors.New("truncated device name")
		}
		rec.Name = string(recNameBytes)

		if _, err = io.ReadFull(r, rec.DeviceID[:]); err != nil {
			return seed, "", nil, errors.New("truncated device id")
		}
		pub := make([]byte, 32)
		if _, err = io.ReadFull(r, pub); err != nil {
			return seed, "", nil, errors.New("truncated device public key")
		}
		rec.PublicKey = pub

		var activeByte byte
		if activeByte, err = r.ReadByte(); err != nil {
			return seed, "", nil, errors.New("truncated device active flag")
		}
		rec.Active = activeByte != 0

		var sigLen uint32
		if err = binary.Read(r, binary.BigEndian, &sigLen); err != nil {
			return seed, "", nil, errors.New("truncated signature length")
		}
		sig := make([]byte, sigLen)
		if _, err = io.ReadFull(r, sig); err != nil {
			return seed, "", nil, errors.New("truncated signature")
		}
		rec.Signature = sig

		devices = append(devices, rec)
	}

	if r.Len() != 0 {
		return seed, "", nil, errors.New("trailing bytes")
	}
	return seed, displayName, devices, nil
}
