package exchange

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/vauchi/core/internal/crypto"
	"github.com/vauchi/core/internal/identity"
	"github.com/vauchi/core/internal/ratchet"
)

// SessionState is an explicit sum-typed state (spec.md §9: "do not fall
// through to a default").
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingScan
	StateQrProcessed
	StateProximityOk
	StateKeyAgreed
	StateCompleted
	StateExpired
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingScan:
		return "AwaitingScan"
	case StateQrProcessed:
		return "QrProcessed"
	case StateProximityOk:
		return "ProximityOk"
	case StateKeyAgreed:
		return "KeyAgreed"
	case StateCompleted:
		return "Completed"
	case StateExpired:
		return "Expired"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Role distinguishes which side of the exchange this session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Session is the exchange state machine described in spec.md §4.4.
// Every transition method checks the current state first; an event not
// named as a transition from the current state fails with
// ErrInvalidState rather than silently doing nothing.
//
// The X3DH-lite handshake is a single round trip over whatever live
// channel the proximity check already established: the responder
// generates a fresh X25519 key pair and sends its public half to the
// initiator in the clear (ShareResponderKey / PerformKeyAgreement
// below); the initiator, who already published its own ephemeral
// public key in the QR, now has both halves and can complete the DH,
// sealing its identity and display name under the result
// (PerformKeyAgreement); the responder computes the identical DH value
// from the same two public keys and opens that payload
// (ReceiveInitiatorPayload), checking the asserted identity key against
// the one the QR's signature already committed to.
type Session struct {
	Role  Role
	State SessionState

	identity  *identity.Identity
	ephemeral *crypto.DHKeyPair

	qr                 *ExchangeQR
	sharedSecret       [32]byte
	peerIdentity       ed25519.PublicKey
	peerDisplayName    string
	responderPublicKey [32]byte // initiator-side: the responder's key from ShareResponderKey

	proximity ProximityVerifier
	replay    *ReplayCache

	Ratchet *ratchet.Session
}

// NewInitiatorSession starts a session that will generate and display a
// QR code.
func NewInitiatorSession(id *identity.Identity, proximity ProximityVerifier, replay *ReplayCache) *Session {
	return &Session{
		Role:      RoleInitiator,
		State:     StateIdle,
		identity:  id,
		proximity: proximity,
		replay:    replay,
	}
}

// NewResponderSession starts a session that will scan a QR code.
func NewResponderSession(id *identity.Identity, proximity ProximityVerifier, replay *ReplayCache) *Session {
	return &Session{
		Role:      RoleResponder,
		State:     StateIdle,
		identity:  id,
		proximity: proximity,
		replay:    replay,
	}
}

// GenerateQR transitions Idle -> AwaitingScan (Initiator only).
func (s *Session) GenerateQR(now time.Time) (*ExchangeQR, error) {
	if s.Role != RoleInitiator || s.State != StateIdle {
		return nil, ErrInvalidState
	}
	ephemeral, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("exchange: generate ephemeral key: %w", err)
	}
	qr, err := NewExchangeQR(s.identity.Signing, ephemeral.PublicKey, now)
	if err != nil {
		return nil, err
	}
	s.ephemeral = ephemeral
	s.qr = qr
	s.State = StateAwaitingScan
	return qr, nil
}

// ProcessQR transitions Idle -> QrProcessed (Responder only). It
// verifies signature, version, non-expiry, replay, and self-exchange.
func (s *Session) ProcessQR(qr *ExchangeQR, now time.Time) error {
	if s.Role != RoleResponder || s.State != StateIdle {
		return ErrInvalidState
	}
	if err := qr.Verify(now); err != nil {
		if err == ErrQRExpired {
			s.State = StateExpired
		} else {
			s.State = StateAborted
		}
		return err
	}
	if s.replay != nil {
		if err := s.replay.CheckAndRemember(qr.ChallengeHash(), now); err != nil {
			s.State = StateAborted
			return err
		}
	}
	if qr.InitiatorIdentityKey.Equal(s.identity.Signing.PublicKey) {
		s.State = StateAborted
		return ErrSelfExchange
	}

	s.qr = qr
	s.peerIdentity = qr.InitiatorIdentityKey
	s.State = StateQrProcessed
	return nil
}

// VerifyProximity transitions to ProximityOk: from QrProcessed on the
// responder, and from AwaitingScan on the initiator (which displays the
// QR rather than processing it).
func (s *Session) VerifyProximity(ctx context.Context, timeout time.Duration) error {
	switch {
	case s.Role == RoleResponder && s.State == StateQrProcessed:
	case s.Role == RoleInitiator && s.State == StateAwaitingScan:
	default:
		return ErrInvalidState
	}
	if s.proximity == nil {
		return ErrProximityFailed
	}
	if err := s.proximity.VerifyProximity(ctx, s.qr.Challenge[:], timeout); err != nil {
		s.State = StateAborted
		return err
	}
	s.State = StateProximityOk
	return nil
}

// ShareResponderKey generates the responder's fresh X25519 key pair and
// returns its public half for transmission to the initiator in the
// clear. Responder-only; does not change state (the state transition
// happens once the DH is actually computed in PerformKeyAgreement).
func (s *Session) ShareResponderKey() ([32]byte, error) {
	if s.Role != RoleResponder || s.State != StateProximityOk {
		return [32]byte{}, ErrInvalidState
	}
	kp, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return [32]byte{}, fmt.Errorf("exchange: generate responder key: %w", err)
	}
	s.ephemeral = kp
	return kp.PublicKey, nil
}

// PerformKeyAgreement completes the X3DH-lite handshake and transitions
// ProximityOk -> KeyAgreed. Attempting this from QrProcessed (skipping
// proximity) fails with ErrInvalidState, as spec.md §4.4 requires.
//
// For the Initiator, peerPublic is the responder's key from
// ShareResponderKey; the returned message must be sent to the
// responder. For the Responder, peerPublic is ignored (it already
// generated its half in ShareResponderKey, against the initiator's
// ephemeral key already present in the QR) and no message is returned.
func (s *Session) PerformKeyAgreement(peerPublic [32]byte) (*EncryptedExchangeMessage, error) {
	if s.State != StateProximityOk {
		return nil, ErrInvalidState
	}
	if s.ephemeral == nil {
		return nil, ErrInvalidState
	}

	switch s.Role {
	case RoleInitiator:
		shared, err := crypto.DH(s.ephemeral.PrivateKey, peerPublic)
		if err != nil {
			return nil, fmt.Errorf("exchange: key agreement: %w", err)
		}
		s.sharedSecret = shared
		s.responderPublicKey = peerPublic
		payload, err := SealExchangePayload(shared, s.identity.Signing.PublicKey, s.ephemeral.PublicKey, s.identity.DisplayName)
		if err != nil {
			return nil, err
		}
		s.State = StateKeyAgreed
		return payload, nil

	case RoleResponder:
		shared, err := crypto.DH(s.ephemeral.PrivateKey, s.qr.InitiatorEphemeralKey)
		if err != nil {
			return nil, fmt.Errorf("exchange: key agreement: %w", err)
		}
		s.sharedSecret = shared
		s.State = StateKeyAgreed
		return nil, nil

	default:
		return nil, ErrInvalidState
	}
}

// ReceiveInitiatorPayload opens the initiator's sealed payload
// (Responder only, callable once KeyAgreed) and checks that the
// asserted identity key matches the one the QR's signature already
// committed to.
func (s *Session) ReceiveInitiatorPayload(msg *EncryptedExchangeMessage) error {
	if s.Role != RoleResponder || s.State != StateKeyAgreed {
		return ErrInvalidState
	}
	assertedIdentity, _, displayName, err := OpenExchangePayload(s.sharedSecret, msg)
	if err != nil {
		return fmt.Errorf("exchange: open initiator payload: %w", err)
	}
	if !assertedIdentity.Equal(s.qr.InitiatorIdentityKey) {
		return ErrIdentityMismatch
	}
	s.peerDisplayName = displayName
	return nil
}

// ExchangeCards transitions KeyAgreed -> Completed, seeding the Double
// Ratchet from the shared secret (spec.md §4.2/§4.4). Subsequent
// ContactCard exchange travels over Ratchet, handled by package sync.
func (s *Session) ExchangeCards() error {
	if s.State != StateKeyAgreed {
		return ErrInvalidState
	}

	var rsession *ratchet.Session
	var err error
	switch s.Role {
	case RoleInitiator:
		rsession, err = ratchet.NewInitiator(s.sharedSecret, s.responderPublicKey)
	case RoleResponder:
		rsession = ratchet.NewResponder(s.sharedSecret, *s.ephemeral)
	default:
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("exchange: seed ratchet: %w", err)
	}
	s.Ratchet = rsession
	s.State = StateCompleted
	return nil
}

// AbortOrTimeout transitions any state to Aborted.
func (s *Session) AbortOrTimeout() {
	s.State = StateAborted
}

// PeerIdentity returns the verified peer identity public key once
// known (after ProcessQR for the responder; the initiator learns its
// peer's identity from the higher-level contact exchange once the
// ratchet carries the responder's ContactCard, outside this package's
// scope).
func (s *Session) PeerIdentity() ed25519.PublicKey { return s.peerIdentity }

// PeerDisplayName returns the peer's display name once learned via key
// agreement.
func (s *Session) PeerDisplayName() string { return s.peerDisplayName }
