// Package ratchet implements the Double Ratchet algorithm (spec.md
// §4.2): a forward-secret, post-compromise-secure symmetric-key channel
// built over X25519 Diffie-Hellman, HKDF-SHA256, and the AEAD wire
// format from internal/crypto.
//
// This generalizes the teacher's internal/security/signal.go
// DoubleRatchetState — which ratchets unconditionally every 100
// messages and has no skipped-message handling — into the standard
// Signal construction, following the interface discipline of the
// reference implementation in ericlagergren/dr (explicit Ratchet/Store
// separation, skip-then-ratchet on out-of-order receive).
package ratchet

import (
	"fmt"

	"github.com/vauchi/core/internal/crypto"
)

// Header travels alongside every ciphertext in plaintext; it lets the
// receiver locate the right chain and message key.
type Header struct {
	DHPublic         [32]byte
	DHGeneration     uint32 // incremented on every DH ratchet step
	MessageIndex     uint32
	PreviousChainLen uint32
}

// State is the complete, serialisable state of one session's ratchet.
type State struct {
	RootKey      [32]byte
	ChainKeySend [32]byte
	ChainKeyRecv [32]byte
	HaveCKSend   bool
	HaveCKRecv   bool

	OwnDH    crypto.DHKeyPair
	RemoteDH [32]byte
	HaveRemoteDH bool

	Ns uint32 // next sending index
	Nr uint32 // next expected receiving index
	PN uint32 // length of the previous sending chain
	Generation uint32

	skipped *skippedStore
}

// Session wraps a State with the operations of spec.md §4.2.
type Session struct {
	State *State
}

const (
	infoRootStep = "VAUCHI-RATCHET-DH"
	infoMsgKey   = "VAUCHI-RATCHET-MSG"
	infoChainKey = "VAUCHI-RATCHET-CHAIN"
)

// NewInitiator creates the initiator side of a session (spec.md §4.2):
// root_key = shared_secret, then an immediate DH ratchet step against
// the peer's static public key, seeding the sending chain. The
// receiving chain is empty until the first reply arrives.
func NewInitiator(sharedSecret [32]byte, peerStaticPublic [32]byte) (*Session, error) {
	ownDH, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("ratchet: generate initiator DH pair: %w", err)
	}
	s := &State{
		RootKey: sharedSecret,
		OwnDH:   *ownDH,
		skipped: newSkippedStore(),
	}
	dh, err := crypto.DH(s.OwnDH.PrivateKey, peerStaticPublic)
	if err != nil {
		return nil, fmt.Errorf("ratchet: initial DH: %w", err)
	}
	rk, ck, err := kdfRK(s.RootKey, dh[:])
	if err != nil {
		return nil, err
	}
	s.RootKey = rk
	s.ChainKeySend = ck
	s.HaveCKSend = true
	s.RemoteDH = peerStaticPublic
	s.HaveRemoteDH = true
	s.Generation++
	return &Session{State: s}, nil
}

// NewResponder creates the responder side of a session (spec.md §4.2).
// The responder's own DH key pair is the one whose public half the
// initiator used to compute the shared secret (i.e. the exchange's
// static/ephemeral responder key). The receiving chain is keyed lazily
// from the first incoming message's header.
func NewResponder(sharedSecret [32]byte, ownDH crypto.DHKeyPair) *Session {
	return &Session{State: &State{
		RootKey: sharedSecret,
		OwnDH:   ownDH,
		skipped: newSkippedStore(),
	}}
}

func kdfRK(rootKey [32]byte, dhOut []byte) (rk, ck [32]byte, err error) {
	out, err := crypto.HKDF64(rootKey[:], dhOut, []byte(infoRootStep))
	if err != nil {
		return rk, ck, fmt.Errorf("ratchet: root KDF: %w", err)
	}
	copy(rk[:], out[:32])
	copy(ck[:], out[32:])
	return rk, ck, nil
}

func kdfCK(chainKey [32]byte) (nextCK, mk [32]byte, err error) {
	mkBytes, err := crypto.HKDF(nil, chainKey[:], []byte(infoMsgKey), 32)
	if err != nil {
		return nextCK, mk, fmt.Errorf("ratchet: message key KDF: %w", err)
	}
	ckBytes, err := crypto.HKDF(nil, chainKey[:], []byte(infoChainKey), 32)
	if err != nil {
		return nextCK, mk, fmt.Errorf("ratchet: chain key KDF: %w", err)
	}
	copy(mk[:], mkBytes)
	copy(nextCK[:], ckBytes)
	return nextCK, mk, nil
}

// Seal derives the next sending message key, advances the sending
// chain, and encrypts plaintext, returning the header to transmit
// alongside the ciphertext. Each message key is used exactly once.
func (s *Session) Seal(plaintext, associatedData []byte) (Header, []byte, error) {
	st := s.State
	if !st.HaveCKSend {
		return Header{}, nil, ErrSessionNotInitialized
	}

	nextCK, mk, err := kdfCK(st.ChainKeySend)
	if err != nil {
		return Header{}, nil, err
	}

	h := Header{
		DHPublic:         st.OwnDH.PublicKey,
		DHGeneration:     st.Generation,
		MessageIndex:     st.Ns,
		PreviousChainLen: st.PN,
	}

	packed, err := sealPack(mk, h, associatedData, plaintext)
	if err != nil {
		return Header{}, nil, err
	}

	st.ChainKeySend = nextCK
	st.Ns++

	return h, packed, nil
}

// headerAAD renders a header into a fixed-width byte string so it can be
// folded into authenticated associated data without ambiguity.
func headerAAD(h Header) []byte {
	b := make([]byte, 0, 32+4+4+4)
	b = append(b, h.DHPublic[:]...)
	b = appendU32(b, h.DHGeneration)
	b = appendU32(b, h.MessageIndex)
	b = appendU32(b, h.PreviousChainLen)
	return b
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// sealPack and openUnpack centralize exactly how a message key, header,
// and associated data are combined under the AEAD, so Seal/Open cannot
// drift out of sync with each other.
func sealPack(mk [32]byte, h Header, associatedData, plaintext []byte) ([]byte, error) {
	aad := headerAAD(h)
	framed := make([]byte, 0, len(aad)+len(associatedData)+len(plaintext))
	framed = append(framed, aad...)
	framed = append(framed, associatedData...)
	framed = append(framed, plaintext...)
	ct, err := crypto.Encrypt(mk[:], framed)
	if err != nil {
		return nil, fmt.Errorf("ratchet: seal: %w", err)
	}
	return ct, nil
}

func openUnpack(mk [32]byte, h Header, associatedData, ciphertext []byte) ([]byte, error) {
	framed, err := crypto.Decrypt(mk[:], ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w", ErrDecryptFailed)
	}
	aad := headerAAD(h)
	prefix := len(aad) + len(associatedData)
	if len(framed) < prefix {
		return nil, fmt.Errorf("%w: truncated frame", ErrDecryptFailed)
	}
	if string(framed[:len(aad)]) != string(aad) {
		return nil, fmt.Errorf("%w: header mismatch", ErrDecryptFailed)
	}
	if string(framed[len(aad):prefix]) != string(associatedData) {
		return nil, fmt.Errorf("%w: associated data mismatch", ErrDecryptFailed)
	}
	return framed[prefix:], nil
}

// Open decrypts a received message, performing a DH ratchet step first
// if the header announces a new remote public key, then skipping
// forward through the receiving chain as needed. Every message key is
// used at most once: a repeat of an already-consumed (dh, index) pair
// fails with ErrReplay, and one that was skipped long enough ago to be
// evicted fails with ErrKeyExpired.
func (s *Session) Open(h Header, ciphertext, associatedData []byte) ([]byte, error) {
	st := s.State
	k := skipKey{dh: h.DHPublic, n: h.MessageIndex}

	if st.HaveRemoteDH && h.DHPublic == st.RemoteDH && h.MessageIndex < st.Nr {
		switch result, mk := st.skipped.take(k); result {
		case lookupPending:
			return openUnpack(mk, h, associatedData, ciphertext)
		case lookupConsumed:
			return nil, ErrReplay
		default:
			return nil, ErrKeyExpired
		}
	}

	// A new (or first-ever) remote DH public key: save skipped keys for
	// the remainder of the previous receiving chain, if any, then
	// perform a full DH ratchet step. This both keys the receiving
	// chain (against our existing own key) and the sending chain
	// (against a freshly generated own key), matching the responder's
	// asymmetric initialization from NewResponder, which deliberately
	// leaves the sending chain unkeyed until this point.
	if !st.HaveRemoteDH || h.DHPublic != st.RemoteDH {
		if err := st.skipMessageKeys(h.PreviousChainLen); err != nil {
			return nil, err
		}
		if err := st.dhRatchet(h.DHPublic); err != nil {
			return nil, err
		}
	}

	if err := st.skipMessageKeys(h.MessageIndex); err != nil {
		return nil, err
	}

	if !st.HaveCKRecv {
		return nil, ErrSessionNotInitialized
	}
	nextCK, mk, err := kdfCK(st.ChainKeyRecv)
	if err != nil {
		return nil, err
	}

	plaintext, err := openUnpack(mk, h, associatedData, ciphertext)
	if err != nil {
		return nil, err
	}

	st.ChainKeyRecv = nextCK
	st.Nr = h.MessageIndex + 1
	st.skipped.markConsumedDirect(k)
	return plaintext, nil
}

// skipMessageKeys advances the receiving chain from its current
// position up to (but not including) until, storing each derived key
// as pending so a later out-of-order message can still use it.
func (st *State) skipMessageKeys(until uint32) error {
	if !st.HaveCKRecv {
		st.Nr = until
		return nil
	}
	if until < st.Nr {
		return nil
	}
	if until-st.Nr > MaxSkippedKeys {
		return fmt.Errorf("ratchet: refusing to skip %d messages at once", until-st.Nr)
	}
	for st.Nr < until {
		nextCK, mk, err := kdfCK(st.ChainKeyRecv)
		if err != nil {
			return err
		}
		st.skipped.putPending(skipKey{dh: st.RemoteDH, n: st.Nr}, mk)
		st.ChainKeyRecv = nextCK
		st.Nr++
	}
	return nil
}

// dhRatchet performs a full DH ratchet step on receiving a new remote
// public key: it keys a fresh receiving chain from the old root key and
// the new DH output, then immediately generates a new own key pair and
// keys a fresh sending chain, as spec.md §4.2 requires ("rotate own dh,
// derive new ck_send").
func (st *State) dhRatchet(remotePublic [32]byte) error {
	st.PN = st.Ns
	st.Ns = 0
	st.Nr = 0
	st.RemoteDH = remotePublic
	st.HaveRemoteDH = true

	dh, err := crypto.DH(st.OwnDH.PrivateKey, st.RemoteDH)
	if err != nil {
		return fmt.Errorf("ratchet: DH (recv step): %w", err)
	}
	rk, ck, err := kdfRK(st.RootKey, dh[:])
	if err != nil {
		return err
	}
	st.RootKey = rk
	st.ChainKeyRecv = ck
	st.HaveCKRecv = true

	newOwn, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return fmt.Errorf("ratchet: generate new DH pair: %w", err)
	}
	st.OwnDH.Drop()
	st.OwnDH = *newOwn

	dh2, err := crypto.DH(st.OwnDH.PrivateKey, st.RemoteDH)
	if err != nil {
		return fmt.Errorf("ratchet: DH (send step): %w", err)
	}
	rk2, ck2, err := kdfRK(st.RootKey, dh2[:])
	if err != nil {
		return err
	}
	st.RootKey = rk2
	st.ChainKeySend = ck2
	st.HaveCKSend = true
	st.Generation++

	return nil
}
