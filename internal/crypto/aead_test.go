package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randKey(t)
	plaintext := []byte("a contact card update")

	ciphertext, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.Equal(t, byte(AlgoXChaCha20Poly1305), ciphertext[0])

	got, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key := randKey(t)
	other := randKey(t)

	ciphertext, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(other, ciphertext)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

// TestDecryptAcceptsLegacyTaggedAESGCM verifies invariant 2 from spec.md
// §8: ciphertext produced under tag 0x01 in previous versions must still
// decrypt.
func TestDecryptAcceptsLegacyTaggedAESGCM(t *testing.T) {
	key := randKey(t)
	plaintext := []byte("legacy payload")

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, 12)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	wire := append([]byte{byte(AlgoAESGCM)}, nonce...)
	wire = append(wire, sealed...)

	got, err := Decrypt(key, wire)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

// TestDecryptAcceptsLegacyUntaggedAESGCM covers the pre-versioning wire
// format: nonce ‖ ciphertext ‖ tag with no leading algorithm byte.
func TestDecryptAcceptsLegacyUntaggedAESGCM(t *testing.T) {
	key := randKey(t)
	plaintext := []byte("ancient payload")

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	wire := gcm.Seal(nonce, nonce, plaintext, nil)
	// First byte of a random nonce is vanishingly unlikely to collide
	// with an algorithm tag; if it does, skip rather than flake.
	if wire[0] == byte(AlgoAESGCM) || wire[0] == byte(AlgoXChaCha20Poly1305) {
		t.Skip("nonce collided with an algorithm tag byte")
	}

	got, err := Decrypt(key, wire)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("short"), []byte("x"))
	require.ErrorIs(t, err, ErrInvalidLength)
}
