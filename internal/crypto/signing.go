package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SigningKeyPair is an Ed25519 long-term signing key pair. PrivateKey
// material is zeroised on Drop; callers must not retain slices aliasing
// it past that call.
type SigningKeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateSigningKeyPair draws a fresh Ed25519 key pair from a CSPRNG.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	return &SigningKeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// SigningKeyPairFromSeed deterministically derives an Ed25519 key pair
// from a 32-byte seed, as used for identity and device key derivation.
func SigningKeyPairFromSeed(seed []byte) (*SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidLength, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &SigningKeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// Sign signs message with the private key.
func (kp *SigningKeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, message)
}

// Verify checks a signature over message against a raw Ed25519 public key.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// Drop zeroises the private key material. Call once a SigningKeyPair is
// no longer needed; subsequent use of PrivateKey is undefined.
func (kp *SigningKeyPair) Drop() {
	if kp == nil {
		return
	}
	zero(kp.PrivateKey)
}

// zero overwrites b with zero bytes in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
