package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vauchi/core/internal/clock"
)

var errSendFailed = errors.New("send failed")

type fakeSender struct {
	frames [][]byte
	fail   bool
}

func (f *fakeSender) SendFrame(_ context.Context, frame []byte) error {
	if f.fail {
		return errSendFailed
	}
	f.frames = append(f.frames, frame)
	return nil
}

func TestMemoryBlobStorePutTakeIsFIFO(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", []byte("one"), time.Hour))
	require.NoError(t, store.Put(ctx, "alice", []byte("two"), time.Hour))
	require.NoError(t, store.Put(ctx, "bob", []byte("other"), time.Hour))

	blobs, err := store.TakeFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	require.Equal(t, []byte("one"), blobs[0].Envelope)
	require.Equal(t, []byte("two"), blobs[1].Envelope)

	again, err := store.TakeFor(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestMemoryBlobStoreSweepExpired(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "alice", []byte("stale"), time.Millisecond))
	require.NoError(t, store.Put(ctx, "alice", []byte("fresh"), time.Hour))

	removed, err := store.SweepExpired(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	blobs, err := store.TakeFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, []byte("fresh"), blobs[0].Envelope)
}

func TestTokenBucketLimiterAllowsThenRejects(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{At: start}
	limiter := NewTokenBucketLimiter(3).WithClock(fixed)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "conn-1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "conn-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenBucketLimiterRefillsOverTime(t *testing.T) {
	stepped := clock.NewStepped(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	limiter := NewTokenBucketLimiter(60).WithClock(stepped)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		ok, _ := limiter.Allow(ctx, "conn-1")
		require.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "conn-1")
	require.False(t, ok)

	stepped.Advance(2 * time.Second)
	ok, err := limiter.Allow(ctx, "conn-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHubRoutesToLiveConnectionSynchronously(t *testing.T) {
	hub := NewHub(NewMemoryBlobStore(), NewTokenBucketLimiter(DefaultRateLimitPerMin), DefaultBlobTTL, 0)
	sender := &fakeSender{}
	require.NoError(t, hub.Register("alice", sender))

	outcome, err := hub.Route(context.Background(), "alice", []byte("frame-1"))
	require.NoError(t, err)
	require.Equal(t, DeliveredToConnection, outcome)
	require.Equal(t, [][]byte{[]byte("frame-1")}, sender.frames)
}

func TestHubQueuesWhenRecipientOffline(t *testing.T) {
	hub := NewHub(NewMemoryBlobStore(), NewTokenBucketLimiter(DefaultRateLimitPerMin), DefaultBlobTTL, 0)

	outcome, err := hub.Route(context.Background(), "bob", []byte("frame-1"))
	require.NoError(t, err)
	require.Equal(t, DeliveredToBlobStore, outcome)

	blobs, err := hub.Drain(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, []byte("frame-1"), blobs[0].Envelope)
}

func TestHubFallsBackToBlobStoreWhenSendFails(t *testing.T) {
	hub := NewHub(NewMemoryBlobStore(), NewTokenBucketLimiter(DefaultRateLimitPerMin), DefaultBlobTTL, 0)
	require.NoError(t, hub.Register("alice", &fakeSender{fail: true}))

	outcome, err := hub.Route(context.Background(), "alice", []byte("frame-1"))
	require.NoError(t, err)
	require.Equal(t, DeliveredToBlobStore, outcome)
}

func TestHubEnforcesConnectionLimit(t *testing.T) {
	hub := NewHub(NewMemoryBlobStore(), NewTokenBucketLimiter(DefaultRateLimitPerMin), DefaultBlobTTL, 1)
	require.NoError(t, hub.Register("alice", &fakeSender{}))

	err := hub.Register("bob", &fakeSender{})
	require.ErrorIs(t, err, ErrConnectionLimitReached)

	// Re-registering the same identity (reconnect) never counts as new.
	require.NoError(t, hub.Register("alice", &fakeSender{}))
}

func TestHubUnregisterIgnoresStaleConnection(t *testing.T) {
	hub := NewHub(NewMemoryBlobStore(), NewTokenBucketLimiter(DefaultRateLimitPerMin), DefaultBlobTTL, 0)
	first := &fakeSender{}
	second := &fakeSender{}
	require.NoError(t, hub.Register("alice", first))
	require.NoError(t, hub.Register("alice", second))
	require.Equal(t, 1, hub.ActiveConnections())

	hub.Unregister("alice", first) // superseded; must not evict second
	require.Equal(t, 1, hub.ActiveConnections())

	hub.Unregister("alice", second)
	require.Equal(t, 0, hub.ActiveConnections())
}
