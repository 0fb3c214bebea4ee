package exchange

import (
	"crypto/ed25519"

	"github.com/vauchi/core/internal/crypto"
)

const exchangeHKDFInfo = "VAUCHI-EXCHANGE"

// EncryptedExchangeMessage carries identity_key, exchange_key, and
// display_name AEAD-encrypted under a one-shot key derived from the
// X3DH-lite shared secret (spec.md §4.4).
type EncryptedExchangeMessage struct {
	Ciphertext []byte
}

type exchangePayload struct {
	IdentityKey ed25519.PublicKey
	ExchangeKey [32]byte
	DisplayName string
}

// deriveMessageKey derives the one-shot AEAD key from the X3DH-lite
// shared secret.
func deriveMessageKey(sharedSecret [32]byte) ([32]byte, error) {
	return crypto.HKDF32(nil, sharedSecret[:], []byte(exchangeHKDFInfo))
}

// SealExchangePayload encrypts the responder's (or initiator's) own
// identity key, a fresh exchange-scoped X25519 public key, and display
// name under the shared secret.
func SealExchangePayload(sharedSecret [32]byte, identityKey ed25519.PublicKey, exchangeKey [32]byte, displayName string) (*EncryptedExchangeMessage, error) {
	key, err := deriveMessageKey(sharedSecret)
	if err != nil {
		return nil, err
	}
	plaintext := marshalExchangePayload(identityKey, exchangeKey, displayName)
	ct, err := crypto.Encrypt(key[:], plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptedExchangeMessage{Ciphertext: ct}, nil
}

// OpenExchangePayload decrypts and parses a peer's exchange payload.
func OpenExchangePayload(sharedSecret [32]byte, msg *EncryptedExchangeMessage) (ed25519.PublicKey, [32]byte, string, error) {
	var exchangeKey [32]byte
	key, err := deriveMessageKey(sharedSecret)
	if err != nil {
		return nil, exchangeKey, "", err
	}
	plaintext, err := crypto.Decrypt(key[:], msg.Ciphertext)
	if err != nil {
		return nil, exchangeKey, "", err
	}
	return unmarshalExchangePayload(plaintext)
}

func marshalExchangePayload(identityKey ed25519.PublicKey, exchangeKey [32]byte, displayName string) []byte {
	nameBytes := []byte(displayName)
	b := make([]byte, 0, 1+len(identityKey)+32+2+len(nameBytes))
	b = append(b, byte(len(identityKey)))
	b = append(b, identityKey...)
	b = append(b, exchangeKey[:]...)
	b = append(b, byte(len(nameBytes)>>8), byte(len(nameBytes)))
	b = append(b, nameBytes...)
	return b
}

func unmarshalExchangePayload(data []byte) (ed25519.PublicKey, [32]byte, string, error) {
	var exchangeKey [32]byte
	if len(data) < 1 {
		return nil, exchangeKey, "", crypto.ErrInvalidLength
	}
	pos := 0
	keyLen := int(data[pos])
	pos++
	if len(data) < pos+keyLen+32+2 {
		return nil, exchangeKey, "", crypto.ErrInvalidLength
	}
	identityKey := append(ed25519.PublicKey(nil), data[pos:pos+keyLen]...)
	pos += keyLen
	copy(exchangeKey[:], data[pos:pos+32])
	pos += 32
	nameLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2
	if len(data) < pos+nameLen {
		return nil, exchangeKey, "", crypto.ErrInvalidLength
	}
	displayName := string(data[pos : pos+nameLen])
	return identityKey, exchangeKey, displayName, nil
}
