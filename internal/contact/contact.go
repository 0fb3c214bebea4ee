package contact

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
)

// contactNamespace seeds the deterministic UUID derived from a peer's
// identity public key, so the same peer always yields the same
// contact-id across devices and reinstalls (spec.md §3: "contact-id is
// stable and derived from the peer's identity public key").
var contactNamespace = uuid.MustParse("8f14e45f-ceea-467e-bd5f-aa3c3a8d7d0a")

// DeriveContactID computes the stable contact-id for a peer identity
// public key.
func DeriveContactID(peerIdentityKey ed25519.PublicKey) uuid.UUID {
	return uuid.NewSHA1(contactNamespace, peerIdentityKey)
}

// Contact is one entry in the local contact list (spec.md §3). The
// identity-bound fields (ID, PeerIdentityKey, SharedKey, ExchangedAt,
// Verified) are immutable once set by the exchange protocol; Card and
// Rules mutate over the life of the relationship.
type Contact struct {
	ID              uuid.UUID
	PeerIdentityKey ed25519.PublicKey
	PeerDisplayName string
	Card            *Card
	SharedKey       [32]byte
	ExchangedAt     time.Time
	Verified        bool
	Rules           RuleSet
}

// NewContact builds a Contact from the outcome of a completed exchange
// (internal/exchange.Session.ExchangeCards).
func NewContact(peerIdentityKey ed25519.PublicKey, peerDisplayName string, sharedKey [32]byte, exchangedAt time.Time) *Contact {
	return &Contact{
		ID:              DeriveContactID(peerIdentityKey),
		PeerIdentityKey: peerIdentityKey,
		PeerDisplayName: peerDisplayName,
		Card:            &Card{DisplayName: peerDisplayName},
		SharedKey:       sharedKey,
		ExchangedAt:     exchangedAt,
		Verified:        true,
		Rules:           make(RuleSet),
	}
}

// UpdateCard replaces the locally held snapshot of the peer's card,
// typically after receiving a sync delta over the ratchet session.
func (c *Contact) UpdateCard(card *Card) {
	c.Card = card
}

// VisibleFields returns the subset of own's fields that own's
// visibility rules permit transmitting to the given recipient contact.
// Filtering is computed fresh per recipient at snapshot-preparation
// time (spec.md §4.5, invariant 6): no field whose rule resolves false
// for recipientID is included.
func VisibleFields(own *Card, rules RuleSet, recipientID uuid.UUID) []Field {
	visible := make([]Field, 0, len(own.Fields))
	for _, f := range own.Fields {
		if rules.Rule(f.ID).Resolves(recipientID) {
			visible = append(visible, f)
		}
	}
	return visible
}

// OutboundSnapshot builds the filtered Card that should be transmitted
// to recipientID: same display name, only the fields VisibleFields
// permits.
func OutboundSnapshot(own *Card, rules RuleSet, recipientID uuid.UUID) *Card {
	return &Card{
		DisplayName: own.DisplayName,
		Fields:      VisibleFields(own, rules, recipientID),
	}
}
