package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyArgon2idDeterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k1 := DeriveKeyArgon2id([]byte("correct horse battery staple"), salt)
	k2 := DeriveKeyArgon2id([]byte("correct horse battery staple"), salt)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)
}

func TestDeriveKeyArgon2idDiffersBySalt(t *testing.T) {
	salt1, err := NewSalt()
	require.NoError(t, err)
	salt2, err := NewSalt()
	require.NoError(t, err)

	k1 := DeriveKeyArgon2id([]byte("password"), salt1)
	k2 := DeriveKeyArgon2id([]byte("password"), salt2)
	require.NotEqual(t, k1, k2)
}

func TestDeriveKeyPBKDF2Deterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k1 := DeriveKeyPBKDF2([]byte("password"), salt, PBKDF2Iterations)
	k2 := DeriveKeyPBKDF2([]byte("password"), salt, PBKDF2Iterations)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)
}

func TestHKDFDeterministicAndLengths(t *testing.T) {
	ikm := []byte("shared secret material")

	out32, err := HKDF32(nil, ikm, []byte("VAUCHI-TEST"))
	require.NoError(t, err)

	out64, err := HKDF64(nil, ikm, []byte("VAUCHI-TEST"))
	require.NoError(t, err)

	require.Equal(t, out32[:], out64[:32])
}

func TestSigningRoundTrip(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("hello")
	sig := kp.Sign(msg)
	require.True(t, Verify(kp.PublicKey, msg, sig))
	require.False(t, Verify(kp.PublicKey, []byte("tampered"), sig))
}

func TestDHAgreement(t *testing.T) {
	alice, err := GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := GenerateDHKeyPair()
	require.NoError(t, err)

	sharedA, err := DH(alice.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	sharedB, err := DH(bob.PrivateKey, alice.PublicKey)
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)
}
