package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(PresenceUpdatePayload{IdentityFingerprint: "abc", Online: true})
	require.NoError(t, err)

	env := &Envelope{
		Version:   EnvelopeVersion,
		MessageID: uuid.New(),
		Timestamp: 123,
		Kind:      PayloadPresenceUpdate,
		Payload:   payload,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeEnvelope(&buf, env))

	decoded, err := DecodeEnvelope(&buf)
	require.NoError(t, err)
	require.Equal(t, env.MessageID, decoded.MessageID)
	require.Equal(t, env.Kind, decoded.Kind)
}

func TestEncodeEnvelopeRejectsOversizedMessage(t *testing.T) {
	huge := make([]byte, MaxMessageSize+1)
	env := &Envelope{Version: EnvelopeVersion, MessageID: uuid.New(), Kind: PayloadPresenceUpdate, Payload: huge}

	var buf bytes.Buffer
	err := EncodeEnvelope(&buf, env)
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestMockTransportSendReceive(t *testing.T) {
	mt := NewMockTransport()
	ctx := context.Background()

	env := &Envelope{Version: EnvelopeVersion, MessageID: uuid.New(), Kind: PayloadPresenceUpdate}
	require.NoError(t, mt.Send(ctx, env))
	require.Len(t, mt.Sent, 1)

	mt.Inbox <- env
	received, err := mt.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, env.MessageID, received.MessageID)

	require.NoError(t, mt.Close())
	_, err = mt.Receive(ctx)
	require.Error(t, err)
}

func TestRelayClientConnectAndReconnect(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	attempts := 0
	dial := func(ctx context.Context) (Transport, error) {
		attempts++
		if attempts < 2 {
			return nil, context.DeadlineExceeded
		}
		return NewMockTransport(), nil
	}

	client := NewClient(priv, dial)
	require.Equal(t, Disconnected, client.State())

	err = client.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, Reconnecting, client.State())

	require.NoError(t, client.Reconnect(context.Background(), 5))
	require.Equal(t, Connected, client.State())
}

func TestEnqueueOutboundQueuesWhileDisconnectedAndRejectsOverflow(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	client := NewClient(priv, func(ctx context.Context) (Transport, error) { return NewMockTransport(), nil })
	client.maxPending = 2

	ctx := context.Background()
	require.NoError(t, client.EnqueueOutbound(ctx, &Envelope{MessageID: uuid.New()}))
	require.NoError(t, client.EnqueueOutbound(ctx, &Envelope{MessageID: uuid.New()}))
	err = client.EnqueueOutbound(ctx, &Envelope{MessageID: uuid.New()})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestAckTrackerTimeout(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	client := NewClient(priv, nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	client.TrackPending(id, now, 30*time.Second)

	require.Empty(t, client.TimedOut(now.Add(10*time.Second)))
	timedOut := client.TimedOut(now.Add(31 * time.Second))
	require.Equal(t, []uuid.UUID{id}, timedOut)

	require.False(t, client.ResolveAck(id))
}

func TestAnonymousSenderResolvesAcrossEpochBoundary(t *testing.T) {
	var sharedKey [32]byte
	copy(sharedKey[:], []byte("shared-key-shared-key-shared-ke"))

	now := int64(10_000_000)
	epoch := CurrentEpoch(now)
	senderID, err := AnonymousSenderID(sharedKey, epoch)
	require.NoError(t, err)

	keys := map[string][32]byte{"contact-1": sharedKey}
	id, ok, err := ResolveSender(senderID, now, keys)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "contact-1", id)

	// Previous epoch also resolves (boundary tolerance).
	prevID, err := AnonymousSenderID(sharedKey, epoch-1)
	require.NoError(t, err)
	id, ok, err = ResolveSender(prevID, now, keys)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "contact-1", id)
}

func TestCertPinningRejectsUnpinnedCert(t *testing.T) {
	der := []byte("fake-der-certificate-bytes")
	fp := LeafFingerprint(der)

	pins := NewPinnedCerts([]string{fp})
	require.NoError(t, pins.VerifyPeerCertificate([][]byte{der}, nil))

	err := pins.VerifyPeerCertificate([][]byte{[]byte("different-der-bytes")}, nil)
	require.Error(t, err)
}

func TestCertPinningRotation(t *testing.T) {
	oldDER := []byte("old-cert")
	newDER := []byte("new-cert")

	pins := NewPinnedCerts([]string{LeafFingerprint(oldDER)})
	pins.AddBackupPin(LeafFingerprint(newDER))

	require.NoError(t, pins.VerifyPeerCertificate([][]byte{newDER}, nil))

	pins.RotatePins()
	require.NoError(t, pins.VerifyPeerCertificate([][]byte{newDER}, nil))
	require.Error(t, pins.VerifyPeerCertificate([][]byte{oldDER}, nil))
}

func TestRelayPoolRoundRobinCyclesThroughRelays(t *testing.T) {
	pool := NewRelayPool(RoundRobin, []string{"a", "b", "c"})
	var got []string
	for i := 0; i < 4; i++ {
		r, err := pool.Select()
		require.NoError(t, err)
		got = append(got, r)
	}
	require.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestRelayPoolHealthBasedPrefersLowerLatency(t *testing.T) {
	pool := NewRelayPool(HealthBased, []string{"a", "b"})
	pool.Observe("a", 500*time.Millisecond, false)
	pool.Observe("b", 10*time.Millisecond, false)

	r, err := pool.Select()
	require.NoError(t, err)
	require.Equal(t, "b", r)
}
