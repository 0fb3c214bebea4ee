// Package identity implements identity creation, the device registry,
// password-protected backups, and device linking (spec.md §4.3),
// generalizing the key-derivation shape of the teacher's
// internal/security/signal.go (HKDFDeriveKey) and internal/auth's
// JWT-issuance style into a device-join assertion instead of a login
// session.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/vauchi/core/internal/crypto"
)

// Identity is one user's full local key material: the master seed,
// derived identity signing key, display name, and device registry.
type Identity struct {
	MasterSeed  [32]byte
	Signing     *crypto.SigningKeyPair
	DisplayName string
	Devices     *DeviceRegistry
}

// PublicID is the hex fingerprint of an identity's signing public key.
func (id *Identity) PublicID() string {
	return Fingerprint(id.Signing.PublicKey)
}

// Fingerprint renders a public key as its hex SHA-256 fingerprint.
func Fingerprint(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:])
}

const identityHKDFInfo = "VAUCHI-IDENTITY"

// Create draws a fresh 32-byte master seed, derives the identity
// signing key pair from it, and registers device index 0 as "Primary
// Device" (spec.md §4.3).
func Create(displayName string) (*Identity, error) {
	var seed [32]byte
	if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
		return nil, fmt.Errorf("identity: generate master seed: %w", err)
	}
	return fromMasterSeed(seed, displayName)
}

func fromMasterSeed(seed [32]byte, displayName string) (*Identity, error) {
	identitySeed, err := crypto.HKDF32(nil, seed[:], []byte(identityHKDFInfo))
	if err != nil {
		return nil, fmt.Errorf("identity: derive identity key: %w", err)
	}
	signing, err := crypto.SigningKeyPairFromSeed(identitySeed[:])
	if err != nil {
		return nil, fmt.Errorf("identity: derive identity key: %w", err)
	}

	id := &Identity{
		MasterSeed:  seed,
		Signing:     signing,
		DisplayName: displayName,
	}
	id.Devices = newDeviceRegistry(seed, signing)
	if _, err := id.Devices.AddDeviceAt(0, "Primary Device"); err != nil {
		return nil, fmt.Errorf("identity: register primary device: %w", err)
	}
	return id, nil
}
