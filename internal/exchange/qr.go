package exchange

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vauchi/core/internal/crypto"
)

// ProtocolVersion is the current ExchangeQR wire version.
const ProtocolVersion uint8 = 1

// QRValidityWindow is how long after issuance a QR remains scannable
// (spec.md §4.4: "expiry (issuance + 600s)").
const QRValidityWindow = 600 * time.Second

// ExchangeQR is displayed by the Initiator and scanned by the
// Responder. Every field except Signature is covered by the signature.
type ExchangeQR struct {
	Version               uint8
	InitiatorIdentityKey  ed25519.PublicKey
	InitiatorEphemeralKey [32]byte
	Challenge             [16]byte
	IssuedAt              time.Time
	ExpiresAt             time.Time
	Signature             []byte
}

// NewExchangeQR builds and signs a fresh QR payload.
func NewExchangeQR(identity *crypto.SigningKeyPair, ephemeralPublic [32]byte, now time.Time) (*ExchangeQR, error) {
	var challenge [16]byte
	if _, err := io.ReadFull(rand.Reader, challenge[:]); err != nil {
		return nil, fmt.Errorf("exchange: generate qr challenge: %w", err)
	}

	qr := &ExchangeQR{
		Version:               ProtocolVersion,
		InitiatorIdentityKey:  identity.PublicKey,
		InitiatorEphemeralKey: ephemeralPublic,
		Challenge:             challenge,
		IssuedAt:              now,
		ExpiresAt:             now.Add(QRValidityWindow),
	}
	qr.Signature = identity.Sign(qr.signedFields())
	return qr, nil
}

// signedFields renders every field but Signature into a canonical byte
// string for signing/verification.
func (qr *ExchangeQR) signedFields() []byte {
	b := make([]byte, 0, 1+len(qr.InitiatorIdentityKey)+32+16+8+8)
	b = append(b, qr.Version)
	b = append(b, qr.InitiatorIdentityKey...)
	b = append(b, qr.InitiatorEphemeralKey[:]...)
	b = append(b, qr.Challenge[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(qr.IssuedAt.Unix()))
	b = binary.BigEndian.AppendUint64(b, uint64(qr.ExpiresAt.Unix()))
	return b
}

// Verify checks the QR's signature, protocol version, non-expiry, and
// that the identity public key and signature key agree (spec.md §4.4).
// It does not check replay; that is the caller's responsibility via the
// challenge-hash cache (see replay.go).
func (qr *ExchangeQR) Verify(now time.Time) error {
	if qr.Version != ProtocolVersion {
		return ErrBadVersion
	}
	if !crypto.Verify(qr.InitiatorIdentityKey, qr.signedFields(), qr.Signature) {
		return ErrBadSignature
	}
	if now.After(qr.ExpiresAt) {
		return ErrQRExpired
	}
	return nil
}

// Encode renders the QR as a compact base64url string suitable for
// encoding into an actual QR code image.
func (qr *ExchangeQR) Encode() string {
	b := make([]byte, 0, 1+1+len(qr.InitiatorIdentityKey)+32+16+8+8+2+len(qr.Signature))
	b = append(b, qr.Version)
	b = append(b, byte(len(qr.InitiatorIdentityKey)))
	b = append(b, qr.InitiatorIdentityKey...)
	b = append(b, qr.InitiatorEphemeralKey[:]...)
	b = append(b, qr.Challenge[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(qr.IssuedAt.Unix()))
	b = binary.BigEndian.AppendUint64(b, uint64(qr.ExpiresAt.Unix()))
	b = binary.BigEndian.AppendUint16(b, uint16(len(qr.Signature)))
	b = append(b, qr.Signature...)
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeExchangeQR parses the wire format Encode produces.
func DecodeExchangeQR(s string) (*ExchangeQR, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("exchange: decode qr: %w", err)
	}
	if len(raw) < 2 {
		return nil, errors.New("exchange: qr too short")
	}

	qr := &ExchangeQR{}
	pos := 0
	qr.Version = raw[pos]
	pos++
	keyLen := int(raw[pos])
	pos++
	if len(raw) < pos+keyLen+32+16+8+8+2 {
		return nil, errors.New("exchange: qr truncated")
	}
	qr.InitiatorIdentityKey = append(ed25519.PublicKey(nil), raw[pos:pos+keyLen]...)
	pos += keyLen
	copy(qr.InitiatorEphemeralKey[:], raw[pos:pos+32])
	pos += 32
	copy(qr.Challenge[:], raw[pos:pos+16])
	pos += 16
	qr.IssuedAt = time.Unix(int64(binary.BigEndian.Uint64(raw[pos:pos+8])), 0).UTC()
	pos += 8
	qr.ExpiresAt = time.Unix(int64(binary.BigEndian.Uint64(raw[pos:pos+8])), 0).UTC()
	pos += 8
	sigLen := int(binary.BigEndian.Uint16(raw[pos : pos+2]))
	pos += 2
	if len(raw) < pos+sigLen {
		return nil, errors.New("exchange: qr signature truncated")
	}
	qr.Signature = append([]byte(nil), raw[pos:pos+sigLen]...)
	return qr, nil
}

// ChallengeHash identifies a QR for replay tracking purposes (spec.md
// §4.4: "remembering recently processed QR challenge hashes for 24h").
func (qr *ExchangeQR) ChallengeHash() [16]byte {
	return qr.Challenge
}
