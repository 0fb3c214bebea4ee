package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceLinkTokenTTL is how long a device-join assertion remains valid
// (spec.md §4.3 EXPANSION).
const DeviceLinkTokenTTL = 10 * time.Minute

// ErrDeviceLinkExpired and ErrDeviceLinkInvalid classify a rejected
// device-join assertion.
var (
	ErrDeviceLinkExpired = errors.New("identity: device link token expired")
	ErrDeviceLinkInvalid = errors.New("identity: device link token invalid")
)

// DeviceLinkQR is displayed by the primary device for a new device to
// scan; it is the device-linking analogue of exchange.ExchangeQR,
// scoped to one's own identity rather than a contact exchange.
type DeviceLinkQR struct {
	IdentityPublicKey ed25519.PublicKey
	Challenge         [16]byte
	IssuedAt          time.Time
}

// NewDeviceLinkQR mints a fresh challenge for a linking session.
func NewDeviceLinkQR(identityPublicKey ed25519.PublicKey, now time.Time) (*DeviceLinkQR, error) {
	var challenge [16]byte
	if _, err := io.ReadFull(rand.Reader, challenge[:]); err != nil {
		return nil, fmt.Errorf("identity: generate device link challenge: %w", err)
	}
	return &DeviceLinkQR{IdentityPublicKey: identityPublicKey, Challenge: challenge, IssuedAt: now}, nil
}

// deviceLinkClaims is the JWT payload the primary device issues once
// it has derived and registered the new device's record.
type deviceLinkClaims struct {
	IdentityID             string `json:"identity_id"`
	DeviceIndex            uint32 `json:"device_index"`
	DevicePubkeyFingerprint string `json:"device_pubkey_fingerprint"`
	jwt.RegisteredClaims
}

// IssueDeviceLinkToken signs a device-join assertion with the
// identity's own Ed25519 key using EdDSA, per spec.md §4.3 EXPANSION.
// Any holder of the device registry can later verify the token against
// the identity's known public key without trusting the bearer.
func IssueDeviceLinkToken(id *Identity, record *DeviceRecord, now time.Time) (string, error) {
	claims := deviceLinkClaims{
		IdentityID:              id.PublicID(),
		DeviceIndex:             record.Index,
		DevicePubkeyFingerprint: Fingerprint(record.PublicKey),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DeviceLinkTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	privKey := ed25519.PrivateKey(id.Signing.PrivateKey)
	signed, err := token.SignedString(privKey)
	if err != nil {
		return "", fmt.Errorf("identity: sign device link token: %w", err)
	}
	return signed, nil
}

// VerifyDeviceLinkToken validates a device-join assertion against the
// identity's known public key and the expected device record, without
// requiring the verifier to trust whoever presented the token.
func VerifyDeviceLinkToken(identityPublicKey ed25519.PublicKey, record *DeviceRecord, tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &deviceLinkClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrDeviceLinkInvalid)
		}
		return identityPublicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrDeviceLinkExpired
		}
		return fmt.Errorf("%w: %v", ErrDeviceLinkInvalid, err)
	}
	claims, ok := parsed.Claims.(*deviceLinkClaims)
	if !ok || !parsed.Valid {
		return ErrDeviceLinkInvalid
	}
	if claims.IdentityID != Fingerprint(identityPublicKey) {
		return ErrDeviceLinkInvalid
	}
	if claims.DeviceIndex != record.Index {
		return ErrDeviceLinkInvalid
	}
	if claims.DevicePubkeyFingerprint != Fingerprint(record.PublicKey) {
		return ErrDeviceLinkInvalid
	}
	return nil
}
