package ratchet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vauchi/core/internal/crypto"
)

// pairedSessions wires up an initiator and a responder sharing the same
// secret, the way C4's X3DH-lite handshake hands off into the ratchet.
func pairedSessions(t *testing.T) (*Session, *Session) {
	t.Helper()

	responderDH, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	var sharedSecret [32]byte
	copy(sharedSecret[:], []byte("0123456789abcdef0123456789abcdef"))

	initiator, err := NewInitiator(sharedSecret, responderDH.PublicKey)
	require.NoError(t, err)

	responder := NewResponder(sharedSecret, *responderDH)

	return initiator, responder
}

func TestSealOpenRoundTrip(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h, ct, err := initiator.Seal([]byte("hello responder"), []byte("aad"))
	require.NoError(t, err)

	pt, err := responder.Open(h, ct, []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, "hello responder", string(pt))
}

// TestBidirectionalRatchet covers a full back-and-forth exchange, each
// reply triggering a DH ratchet step on the other side.
func TestBidirectionalRatchet(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h1, ct1, err := initiator.Seal([]byte("ping"), nil)
	require.NoError(t, err)
	pt1, err := responder.Open(h1, ct1, nil)
	require.NoError(t, err)
	require.Equal(t, "ping", string(pt1))

	h2, ct2, err := responder.Seal([]byte("pong"), nil)
	require.NoError(t, err)
	pt2, err := initiator.Open(h2, ct2, nil)
	require.NoError(t, err)
	require.Equal(t, "pong", string(pt2))

	h3, ct3, err := initiator.Seal([]byte("ping again"), nil)
	require.NoError(t, err)
	pt3, err := responder.Open(h3, ct3, nil)
	require.NoError(t, err)
	require.Equal(t, "ping again", string(pt3))
}

// TestOutOfOrderDelivery is scenario S2: messages m1, m2, m3 are sent but
// arrive as m2, m3, m1. All three must still decrypt exactly once.
func TestOutOfOrderDelivery(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h1, ct1, err := initiator.Seal([]byte("m1"), nil)
	require.NoError(t, err)
	h2, ct2, err := initiator.Seal([]byte("m2"), nil)
	require.NoError(t, err)
	h3, ct3, err := initiator.Seal([]byte("m3"), nil)
	require.NoError(t, err)

	pt2, err := responder.Open(h2, ct2, nil)
	require.NoError(t, err)
	require.Equal(t, "m2", string(pt2))

	pt3, err := responder.Open(h3, ct3, nil)
	require.NoError(t, err)
	require.Equal(t, "m3", string(pt3))

	pt1, err := responder.Open(h1, ct1, nil)
	require.NoError(t, err)
	require.Equal(t, "m1", string(pt1))
}

// TestReplayRejected is scenario S3: a message already decrypted once
// must be rejected as a replay on a second delivery, whether it arrived
// in order or was skipped-then-consumed.
func TestReplayRejected(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h1, ct1, err := initiator.Seal([]byte("in order"), nil)
	require.NoError(t, err)
	_, err = responder.Open(h1, ct1, nil)
	require.NoError(t, err)

	_, err = responder.Open(h1, ct1, nil)
	require.ErrorIs(t, err, ErrReplay)

	h2, ct2, err := initiator.Seal([]byte("m2"), nil)
	require.NoError(t, err)
	h3, ct3, err := initiator.Seal([]byte("m3"), nil)
	require.NoError(t, err)

	_, err = responder.Open(h3, ct3, nil)
	require.NoError(t, err)
	_, err = responder.Open(h2, ct2, nil)
	require.NoError(t, err)

	_, err = responder.Open(h2, ct2, nil)
	require.ErrorIs(t, err, ErrReplay)
}

func TestTamperedCiphertextFailsAuthentication(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h, ct, err := initiator.Seal([]byte("integrity matters"), nil)
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = responder.Open(h, tampered, nil)
	require.Error(t, err)
}

func TestSealFailsBeforeResponderHasSent(t *testing.T) {
	_, responder := pairedSessions(t)

	_, _, err := responder.Seal([]byte("too soon"), nil)
	require.ErrorIs(t, err, ErrSessionNotInitialized)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h1, ct1, err := initiator.Seal([]byte("m1"), nil)
	require.NoError(t, err)
	h2, ct2, err := initiator.Seal([]byte("m2"), nil)
	require.NoError(t, err)
	_, err = responder.Open(h2, ct2, nil)
	require.NoError(t, err)

	buf := responder.Marshal()
	restored, err := Unmarshal(buf)
	require.NoError(t, err)

	pt1, err := restored.Open(h1, ct1, nil)
	require.NoError(t, err)
	require.Equal(t, "m1", string(pt1))
}

func TestUnmarshalRejectsTruncatedBuffer(t *testing.T) {
	_, err := Unmarshal([]byte("too short"))
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	initiator, _ := pairedSessions(t)
	buf := initiator.Marshal()
	buf = append(buf, 0xFF)

	_, err := Unmarshal(buf)
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestMismatchedAssociatedDataRejected(t *testing.T) {
	initiator, responder := pairedSessions(t)

	h, ct, err := initiator.Seal([]byte("payload"), []byte("correct-aad"))
	require.NoError(t, err)

	_, err = responder.Open(h, ct, []byte("wrong-aad"))
	require.Error(t, err)
}
