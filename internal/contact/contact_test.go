package contact

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCardAddFieldEnforcesMax(t *testing.T) {
	card, err := NewCard("Alice")
	require.NoError(t, err)

	for i := 0; i < MaxFields; i++ {
		_, err := card.AddField(FieldCustom, "label", "value")
		require.NoError(t, err)
	}
	_, err = card.AddField(FieldCustom, "one too many", "value")
	require.ErrorIs(t, err, ErrMaxFieldsReached)
}

func TestCardFieldLengthLimits(t *testing.T) {
	card, err := NewCard("Alice")
	require.NoError(t, err)

	longLabel := make([]byte, MaxLabelLen+1)
	for i := range longLabel {
		longLabel[i] = 'a'
	}
	_, err = card.AddField(FieldEmail, string(longLabel), "x")
	require.ErrorIs(t, err, ErrLabelTooLong)

	longValue := make([]byte, MaxValueLen+1)
	for i := range longValue {
		longValue[i] = 'a'
	}
	_, err = card.AddField(FieldEmail, "label", string(longValue))
	require.ErrorIs(t, err, ErrValueTooLong)
}

func TestNewCardRejectsLongDisplayName(t *testing.T) {
	longName := make([]byte, MaxDisplayNameLen+1)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err := NewCard(string(longName))
	require.ErrorIs(t, err, ErrDisplayNameTooLong)
}

func TestCardRemoveAndModifyField(t *testing.T) {
	card, err := NewCard("Alice")
	require.NoError(t, err)

	f, err := card.AddField(FieldEmail, "home", "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, card.ModifyField(f.ID, "home", "alice2@example.com"))
	require.Equal(t, "alice2@example.com", card.Fields[0].Value)

	require.NoError(t, card.RemoveField(f.ID))
	require.Empty(t, card.Fields)

	err = card.RemoveField(f.ID)
	require.ErrorIs(t, err, ErrFieldNotFound)

	err = card.ModifyField(f.ID, "x", "y")
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestCardEqualityIsOrderIndependent(t *testing.T) {
	a, err := NewCard("Alice")
	require.NoError(t, err)
	f1, err := a.AddField(FieldEmail, "home", "a@example.com")
	require.NoError(t, err)
	f2, err := a.AddField(FieldPhone, "cell", "555-1234")
	require.NoError(t, err)

	b := &Card{
		DisplayName: "Alice",
		Fields:      []Field{f2, f1},
	}

	require.True(t, a.Equal(b))

	b.DisplayName = "Alicia"
	require.False(t, a.Equal(b))
}

func TestDeriveContactIDIsStable(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	id1 := DeriveContactID(pub)
	id2 := DeriveContactID(pub)
	require.Equal(t, id1, id2)

	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NotEqual(t, id1, DeriveContactID(otherPub))
}

// TestVisibilityFilteringInvariant verifies invariant 6: no field
// whose rule resolves to Nobody, or Contacts(S) with the recipient not
// in S, ever appears in a recipient's outbound snapshot.
func TestVisibilityFilteringInvariant(t *testing.T) {
	card, err := NewCard("Alice")
	require.NoError(t, err)

	everyone, err := card.AddField(FieldEmail, "public", "alice@example.com")
	require.NoError(t, err)
	secret, err := card.AddField(FieldPhone, "private", "555-0000")
	require.NoError(t, err)
	scoped, err := card.AddField(FieldAddress, "work-only", "123 Main St")
	require.NoError(t, err)

	workContact := uuid.New()
	otherContact := uuid.New()

	rules := make(RuleSet)
	rules.Set(secret.ID, AllowNobody())
	rules.Set(scoped.ID, AllowContacts(workContact))

	workSnapshot := OutboundSnapshot(card, rules, workContact)
	require.Len(t, workSnapshot.Fields, 2)
	ids := map[uuid.UUID]bool{}
	for _, f := range workSnapshot.Fields {
		ids[f.ID] = true
	}
	require.True(t, ids[everyone.ID])
	require.True(t, ids[scoped.ID])
	require.False(t, ids[secret.ID])

	otherSnapshot := OutboundSnapshot(card, rules, otherContact)
	require.Len(t, otherSnapshot.Fields, 1)
	require.Equal(t, everyone.ID, otherSnapshot.Fields[0].ID)
}

func TestVisibilityDefaultsToEveryone(t *testing.T) {
	rules := make(RuleSet)
	fieldID := uuid.New()
	require.True(t, rules.Rule(fieldID).Resolves(uuid.New()))
}

func TestNewContactFromExchange(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewContact(pub, "Bob", [32]byte{1, 2, 3}, now)

	require.Equal(t, DeriveContactID(pub), c.ID)
	require.True(t, c.Verified)
	require.Equal(t, "Bob", c.Card.DisplayName)
	require.Empty(t, c.Card.Fields)
}
