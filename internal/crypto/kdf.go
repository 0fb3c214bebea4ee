package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"
)

// Argon2id parameters for new password-derived keys, per OWASP
// recommendations: m=64MiB, t=3, p=4.
const (
	Argon2Time      uint32 = 3
	Argon2MemoryKiB uint32 = 64 * 1024
	Argon2Threads   uint8  = 4
	Argon2KeyLength uint32 = 32
	SaltLength             = 16

	// PBKDF2Iterations is used only when importing legacy backups.
	PBKDF2Iterations = 100_000
)

// NewSalt draws a fresh random salt of SaltLength bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: salt generation: %v", ErrKdfFailed, err)
	}
	return salt, nil
}

// DeriveKeyArgon2id derives a 32-byte key from password and salt using
// Argon2id. Used for every new wrap-key derivation (backup export,
// at-rest storage key when sourced from a password).
func DeriveKeyArgon2id(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, Argon2Time, Argon2MemoryKiB, Argon2Threads, Argon2KeyLength)
}

// DeriveKeyPBKDF2 derives a 32-byte key from password and salt using
// PBKDF2-HMAC-SHA256 with the given iteration count. Only used when
// importing a legacy backup created before the Argon2id migration.
func DeriveKeyPBKDF2(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, 32, sha256.New)
}
