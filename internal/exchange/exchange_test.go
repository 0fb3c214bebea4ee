package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vauchi/core/internal/identity"
)

func mustIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	id, err := identity.Create(name)
	require.NoError(t, err)
	return id
}

// runFullExchange drives both sides of a basic exchange to Completed
// (scenario S1).
func runFullExchange(t *testing.T, now time.Time) (initiator, responder *Session) {
	t.Helper()

	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator = NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder = NewResponderSession(bob, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingScan, initiator.State)

	require.NoError(t, responder.ProcessQR(qr, now))
	require.Equal(t, StateQrProcessed, responder.State)

	ctx := context.Background()
	require.NoError(t, responder.VerifyProximity(ctx, time.Second))
	require.NoError(t, initiator.VerifyProximity(ctx, time.Second))

	responderKey, err := responder.ShareResponderKey()
	require.NoError(t, err)

	initiatorMsg, err := initiator.PerformKeyAgreement(responderKey)
	require.NoError(t, err)
	require.NotNil(t, initiatorMsg)

	_, err = responder.PerformKeyAgreement([32]byte{})
	require.NoError(t, err)

	require.NoError(t, responder.ReceiveInitiatorPayload(initiatorMsg))
	require.Equal(t, "Alice", responder.PeerDisplayName())

	require.NoError(t, initiator.ExchangeCards())
	require.NoError(t, responder.ExchangeCards())
	require.Equal(t, StateCompleted, initiator.State)
	require.Equal(t, StateCompleted, responder.State)

	return initiator, responder
}

func TestBasicExchangeReachesCompleted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	initiator, responder := runFullExchange(t, now)

	require.NotNil(t, initiator.Ratchet)
	require.NotNil(t, responder.Ratchet)

	h, ct, err := initiator.Ratchet.Seal([]byte("hello bob"), nil)
	require.NoError(t, err)
	pt, err := responder.Ratchet.Open(h, ct, nil)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(pt))
}

func TestPerformKeyAgreementSkippingProximityFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(bob, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)
	require.NoError(t, responder.ProcessQR(qr, now))

	_, err = responder.ShareResponderKey()
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = responder.PerformKeyAgreement([32]byte{})
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestExpiredQRRejected is scenario S4.
func TestExpiredQRRejected(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(bob, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(t0)
	require.NoError(t, err)

	scanTime := t0.Add(601 * time.Second)
	err = responder.ProcessQR(qr, scanTime)
	require.ErrorIs(t, err, ErrQRExpired)
	require.Equal(t, StateExpired, responder.State)
}

func TestSelfExchangeRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(alice, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)

	err = responder.ProcessQR(qr, now)
	require.ErrorIs(t, err, ErrSelfExchange)
}

func TestQRReplayRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)

	sharedReplay := NewReplayCache()

	responder1 := NewResponderSession(bob, &MockVerifier{}, sharedReplay)
	require.NoError(t, responder1.ProcessQR(qr, now))

	responder2 := NewResponderSession(bob, &MockVerifier{}, sharedReplay)
	err = responder2.ProcessQR(qr, now.Add(time.Minute))
	require.ErrorIs(t, err, ErrQRAlreadyUsed)
}

func TestInvalidStateSkippingProximityDirectlyFromQrProcessed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(bob, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)
	require.NoError(t, responder.ProcessQR(qr, now))

	// QrProcessed -> attempting key agreement directly must fail.
	_, err = responder.PerformKeyAgreement([32]byte{})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProximityFailureAborts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(bob, &MockVerifier{Err: ErrProximityTooFar}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)
	require.NoError(t, responder.ProcessQR(qr, now))

	err = responder.VerifyProximity(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrProximityTooFar)
	require.Equal(t, StateAborted, responder.State)
}

func TestQREncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)

	encoded := qr.Encode()
	decoded, err := DecodeExchangeQR(encoded)
	require.NoError(t, err)

	require.NoError(t, decoded.Verify(now))
	require.Equal(t, qr.InitiatorIdentityKey, decoded.InitiatorIdentityKey)
	require.Equal(t, qr.Challenge, decoded.Challenge)
}

func TestIdentityMismatchRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := mustIdentity(t, "Alice")
	bob := mustIdentity(t, "Bob")
	mallory := mustIdentity(t, "Mallory")

	initiator := NewInitiatorSession(alice, &MockVerifier{}, NewReplayCache())
	responder := NewResponderSession(bob, &MockVerifier{}, NewReplayCache())

	qr, err := initiator.GenerateQR(now)
	require.NoError(t, err)
	require.NoError(t, responder.ProcessQR(qr, now))

	ctx := context.Background()
	require.NoError(t, responder.VerifyProximity(ctx, time.Second))
	require.NoError(t, initiator.VerifyProximity(ctx, time.Second))

	responderKey, err := responder.ShareResponderKey()
	require.NoError(t, err)

	initiatorMsg, err := initiator.PerformKeyAgreement(responderKey)
	require.NoError(t, err)

	// Tamper: forge a payload under the same shared secret but a
	// different (attacker) identity key.
	_, err = responder.PerformKeyAgreement([32]byte{})
	require.NoError(t, err)

	forged, err := SealExchangePayload(responder.sharedSecret, mallory.Signing.PublicKey, [32]byte{}, "Mallory")
	require.NoError(t, err)
	_ = initiatorMsg

	err = responder.ReceiveInitiatorPayload(forged)
	require.ErrorIs(t, err, ErrIdentityMismatch)
}
