package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AlgoTag identifies the AEAD algorithm used for a ciphertext on the wire.
type AlgoTag byte

const (
	// AlgoAESGCM is AES-256-GCM with a 12-byte nonce. Readable for
	// backward compatibility; new encryptions must not produce it.
	AlgoAESGCM AlgoTag = 0x01
	// AlgoXChaCha20Poly1305 is XChaCha20-Poly1305 with a 24-byte nonce.
	// Every new encryption uses this algorithm.
	AlgoXChaCha20Poly1305 AlgoTag = 0x02

	keySize        = 32
	aesGCMNonceLen = 12
	xchachaNonceLen = chacha20poly1305.NonceSizeX
)

// Encrypt seals plaintext under key using XChaCha20-Poly1305 and returns
// the tagged wire layout: algo tag (0x02) ‖ nonce ‖ ciphertext ‖ tag.
// The nonce is drawn fresh from a CSPRNG for every call.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidLength, keySize)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	nonce := make([]byte, xchachaNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", ErrEncryptFailed, err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, byte(AlgoXChaCha20Poly1305))
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt, or by a previous
// version of this protocol. It accepts three wire layouts, selected by
// the leading byte:
//
//   - 0x01: AES-256-GCM, tag ‖ 12-byte nonce ‖ ciphertext ‖ tag (legacy).
//   - 0x02: XChaCha20-Poly1305, tag ‖ 24-byte nonce ‖ ciphertext ‖ tag.
//   - anything else: treated as the legacy untagged AES-256-GCM layout,
//     12-byte nonce ‖ ciphertext ‖ tag, with no leading tag byte at all.
//
// Every failure wraps the same ErrDecryptFailed sentinel. Input shorter
// than the nonce is rejected before any AEAD Open; otherwise tag
// verification is left to the AEAD implementation's Open.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidLength, keySize)
	}
	if len(ciphertext) < 1 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecryptFailed)
	}

	switch AlgoTag(ciphertext[0]) {
	case AlgoAESGCM:
		return decryptAESGCM(key, ciphertext[1:])
	case AlgoXChaCha20Poly1305:
		return decryptXChaCha(key, ciphertext[1:])
	default:
		// Legacy untagged AES-GCM: no leading tag byte at all.
		return decryptAESGCM(key, ciphertext)
	}
}

func decryptAESGCM(key, body []byte) ([]byte, error) {
	if len(body) < aesGCMNonceLen {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	nonce, ct := body[:aesGCMNonceLen], body[aesGCMNonceLen:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptFailed)
	}
	return plaintext, nil
}

func decryptXChaCha(key, body []byte) ([]byte, error) {
	if len(body) < xchachaNonceLen {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	nonce, ct := body[:xchachaNonceLen], body[xchachaNonceLen:]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptFailed)
	}
	return plaintext, nil
}
