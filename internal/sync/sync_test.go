package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vauchi/core/internal/contact"
	"github.com/vauchi/core/internal/storage"
)

func TestComputeAndApplyRoundTrip(t *testing.T) {
	old, err := contact.NewCard("Alice")
	require.NoError(t, err)
	f1, err := old.AddField(contact.FieldEmail, "home", "alice@example.com")
	require.NoError(t, err)
	f2, err := old.AddField(contact.FieldPhone, "cell", "555-1111")
	require.NoError(t, err)

	updated := old.Clone()
	require.NoError(t, updated.RemoveField(f2.ID))
	require.NoError(t, updated.RenameField(f1.ID, "personal"))
	require.NoError(t, updated.SetDisplayName("Alice Smith"))
	addedField, err := updated.AddField(contact.FieldWebsite, "site", "https://example.com")
	require.NoError(t, err)

	delta := Compute(old, updated)
	require.NotEmpty(t, delta)

	target := old.Clone()
	require.NoError(t, Apply(delta, target))
	require.True(t, target.Equal(updated))
	_ = addedField

	// Applying again to the already-applied target would error on the
	// Remove; re-derive from the same base instead to check determinism
	// of Compute.
	delta2 := Compute(old, updated)
	require.Equal(t, delta, delta2)
}

func TestApplyFailsOnMissingField(t *testing.T) {
	card, err := contact.NewCard("Alice")
	require.NoError(t, err)

	delta := CardDelta{{Kind: Remove, FieldID: uuid.New()}}
	err = Apply(delta, card)
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestVersionVectorCompare(t *testing.T) {
	a := VersionVector{"dev-1": 2, "dev-2": 1}
	b := VersionVector{"dev-1": 2, "dev-2": 1}
	require.Equal(t, Equal, Compare(a, b))

	c := a.Clone().Increment("dev-1")
	require.Equal(t, Dominates, Compare(c, a))
	require.Equal(t, DominatedBy, Compare(a, c))

	d := VersionVector{"dev-1": 3, "dev-2": 0}
	e := VersionVector{"dev-1": 2, "dev-2": 5}
	require.Equal(t, Concurrent, Compare(d, e))
}

func TestFieldVersionLWWTiebreakByDeviceID(t *testing.T) {
	v1 := FieldVersion{DeviceID: "aaa", Counter: 5}
	v2 := FieldVersion{DeviceID: "bbb", Counter: 5}
	require.True(t, v2.After(v1))
	require.False(t, v1.After(v2))
}

func TestBackoffBoundedAndJittered(t *testing.T) {
	d := Backoff(0)
	require.InDelta(t, float64(time.Second), float64(d), float64(time.Second)*0.25)

	capped := Backoff(20)
	require.LessOrEqual(t, capped, time.Duration(float64(300*time.Second)*1.25))
}

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcde"))
	store, err := storage.Open(filepath.Join(dir, "q.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewQueue(store)
}

func TestQueueEnqueueTakeNextAckFIFO(t *testing.T) {
	q := openTestQueue(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contactID := uuid.New()
	card, err := contact.NewCard("Bob")
	require.NoError(t, err)
	require.NoError(t, q.store.SaveContact(&contact.Contact{
		ID: contactID, PeerIdentityKey: make([]byte, 32), Card: card,
		ExchangedAt: now, Rules: make(contact.RuleSet),
	}))

	id1, err := q.Enqueue(contactID, "Add", []byte("p1"), now)
	require.NoError(t, err)
	_, err = q.Enqueue(contactID, "Remove", []byte("p2"), now.Add(time.Second))
	require.NoError(t, err)

	due, err := q.TakeNext(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, id1, due[0].UpdateID)

	// Marked in_flight: a second TakeNext should not return them again.
	again, err := q.TakeNext(now, 10)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, q.Ack(id1))
}

func TestQueueFailRetriesThenPermanentFailure(t *testing.T) {
	q := openTestQueue(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contactID := uuid.New()
	card, err := contact.NewCard("Bob")
	require.NoError(t, err)
	require.NoError(t, q.store.SaveContact(&contact.Contact{
		ID: contactID, PeerIdentityKey: make([]byte, 32), Card: card,
		ExchangedAt: now, Rules: make(contact.RuleSet),
	}))

	id, err := q.Enqueue(contactID, "Add", []byte("p1"), now)
	require.NoError(t, err)

	due, err := q.TakeNext(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	rec := due[0]

	for i := 0; i < MaxRetries; i++ {
		err := q.Fail(rec, "timeout", now)
		require.NoError(t, err)
		rec.RetryCount++
	}

	err = q.Fail(rec, "timeout", now)
	require.ErrorIs(t, err, ErrPermanentFailure)
	_ = id
}
