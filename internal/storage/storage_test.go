package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vauchi/core/internal/contact"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcde"))
	s, err := Open(filepath.Join(dir, "vauchi.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestIdentityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.LoadIdentity()
	require.ErrorIs(t, err, ErrNotFound)

	rec := IdentityRecord{EncryptedBackup: []byte("backup-blob"), DisplayName: "Alice", CreatedAt: now}
	require.NoError(t, s.SaveIdentity(rec))

	loaded, err := s.LoadIdentity()
	require.NoError(t, err)
	require.Equal(t, rec.EncryptedBackup, loaded.EncryptedBackup)
	require.Equal(t, rec.DisplayName, loaded.DisplayName)
}

func TestContactRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	card, err := contact.NewCard("Bob")
	require.NoError(t, err)
	_, err = card.AddField(contact.FieldEmail, "home", "bob@example.com")
	require.NoError(t, err)

	peerPub := make([]byte, 32)
	c := &contact.Contact{
		ID:              uuid.New(),
		PeerIdentityKey: peerPub,
		PeerDisplayName: "Bob",
		Card:            card,
		SharedKey:       [32]byte{1, 2, 3},
		ExchangedAt:     now,
		Verified:        true,
		Rules:           make(contact.RuleSet),
	}

	require.NoError(t, s.SaveContact(c))

	loaded, err := s.LoadContact(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, loaded.ID)
	require.True(t, loaded.Card.Equal(card))
	require.Equal(t, c.SharedKey, loaded.SharedKey)
	require.True(t, loaded.Verified)

	all, err := s.ListContacts()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteContact(c.ID))
	_, err = s.LoadContact(c.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPendingUpdateQueueFIFOAndRetryGating(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contactID := uuid.New()
	card, err := contact.NewCard("Bob")
	require.NoError(t, err)
	require.NoError(t, s.SaveContact(&contact.Contact{
		ID: contactID, PeerIdentityKey: make([]byte, 32), Card: card,
		ExchangedAt: now, Rules: make(contact.RuleSet),
	}))

	rec1 := PendingUpdateRecord{
		UpdateID: uuid.New(), ContactID: contactID, UpdateType: "Add",
		EncryptedPayload: []byte("p1"), CreatedAt: now,
		Status: PendingUpdateStatus{State: "pending"},
	}
	rec2 := PendingUpdateRecord{
		UpdateID: uuid.New(), ContactID: contactID, UpdateType: "Remove",
		EncryptedPayload: []byte("p2"), CreatedAt: now.Add(time.Second),
		Status: PendingUpdateStatus{State: "failed", RetryAt: now.Add(time.Hour)},
	}
	require.NoError(t, s.SaveOrUpdatePendingUpdate(rec1))
	require.NoError(t, s.SaveOrUpdatePendingUpdate(rec2))

	due, err := s.TakeNextPending(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, rec1.UpdateID, due[0].UpdateID)

	due, err = s.TakeNextPending(now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, rec1.UpdateID, due[0].UpdateID)
	require.Equal(t, rec2.UpdateID, due[1].UpdateID)

	require.NoError(t, s.DeletePendingUpdate(rec1.UpdateID))
	due, err = s.TakeNextPending(now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestConsentAndAuditAppendOnly(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendConsentRecord("contact-1", "granted", now))
	require.NoError(t, s.AppendConsentRecord("contact-1", "revoked", now.Add(time.Minute)))

	latest, err := s.LatestConsent("contact-1")
	require.NoError(t, err)
	require.Equal(t, "revoked", latest)

	require.NoError(t, s.AppendAuditLog("exchange_completed", "contact-1", now))
}

func TestRecoveryRateLimitRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rl, err := s.LoadRecoveryRateLimit("pk-abc")
	require.NoError(t, err)
	require.Equal(t, 0, rl.Count)

	rl.Count = 3
	rl.WindowStart = now
	require.NoError(t, s.SaveRecoveryRateLimit(rl))

	reloaded, err := s.LoadRecoveryRateLimit("pk-abc")
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Count)
}
