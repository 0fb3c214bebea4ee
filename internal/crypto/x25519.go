package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// DHKeyPair is an X25519 key pair used for Diffie-Hellman agreement,
// both for ephemeral exchange keys (C4) and ratchet keys (C2).
type DHKeyPair struct {
	PrivateKey [32]byte
	PublicKey  [32]byte
}

// GenerateDHKeyPair draws a fresh X25519 key pair, clamped per the
// Curve25519 specification.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var priv, pub [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	copy(pub[:], out)
	return &DHKeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// DH performs X25519 scalar multiplication between a local private key
// and a remote public key, returning the 32-byte shared value.
func DH(privateKey, publicKey [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return shared, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	copy(shared[:], out)
	return shared, nil
}

// Drop zeroises the private key half of the pair.
func (kp *DHKeyPair) Drop() {
	if kp == nil {
		return
	}
	zero(kp.PrivateKey[:])
}
