package recovery

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vauchi/core/internal/crypto"
)

// claimDomain is the signing domain for a RecoveryClaim, following the
// same "VAUCHI-<PURPOSE>" convention as the handshake ("VAUCHI-HS"),
// exchange ("VAUCHI-EXCHANGE"), and device-derivation ("VAUCHI-DEVICE")
// domains elsewhere in this module.
const claimDomain = "VAUCHI-CLAIM"

// voucherDomain is the exact signing domain named by spec.md §3: a
// voucher signs "VAUCHI-VOUCH" ‖ old_pk ‖ new_pk.
const voucherDomain = "VAUCHI-VOUCH"

// ClaimFreshness bounds how old a claim may be before it is rejected
// (spec.md §4.10).
const ClaimFreshness = 48 * time.Hour

// RecoveryClaim asserts that new_pk is the legitimate successor to a
// lost identity old_pk, self-signed by the new identity's own key so a
// verifier knows the claimer actually controls new_pk.
type RecoveryClaim struct {
	OldPK     ed25519.PublicKey
	NewPK     ed25519.PublicKey
	Timestamp time.Time
	Signature []byte
}

func claimMessage(oldPK, newPK ed25519.PublicKey, timestamp time.Time) []byte {
	msg := make([]byte, 0, len(claimDomain)+len(oldPK)+len(newPK)+8)
	msg = append(msg, claimDomain...)
	msg = append(msg, oldPK...)
	msg = append(msg, newPK...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestamp.Unix()))
	return append(msg, ts[:]...)
}

// NewRecoveryClaim builds and signs a claim for oldPK using the new
// identity's signing key pair.
func NewRecoveryClaim(oldPK ed25519.PublicKey, newKeyPair *crypto.SigningKeyPair, timestamp time.Time) *RecoveryClaim {
	msg := claimMessage(oldPK, newKeyPair.PublicKey, timestamp)
	return &RecoveryClaim{
		OldPK:     oldPK,
		NewPK:     newKeyPair.PublicKey,
		Timestamp: timestamp,
		Signature: newKeyPair.Sign(msg),
	}
}

// Verify checks the claim's self-signature and freshness against now.
func (c *RecoveryClaim) Verify(now time.Time) error {
	msg := claimMessage(c.OldPK, c.NewPK, c.Timestamp)
	if !crypto.Verify(c.NewPK, msg, c.Signature) {
		return fmt.Errorf("%w: claim", ErrInvalidSignature)
	}
	if now.Sub(c.Timestamp) > ClaimFreshness {
		return ErrClaimExpired
	}
	return nil
}

// RecoveryVoucher is a signed in-person attestation by an existing
// contact of the lost identity that the bearer of a RecoveryClaim is
// genuine.
type RecoveryVoucher struct {
	OldPK     ed25519.PublicKey
	NewPK     ed25519.PublicKey
	SignerPK  ed25519.PublicKey
	Signature []byte
	Timestamp time.Time
}

func voucherMessage(oldPK, newPK ed25519.PublicKey) []byte {
	msg := make([]byte, 0, len(voucherDomain)+len(oldPK)+len(newPK))
	msg = append(msg, voucherDomain...)
	msg = append(msg, oldPK...)
	return append(msg, newPK...)
}

// NewRecoveryVoucher signs a voucher for claim using signerKeyPair, the
// long-term identity key of one of old_pk's contacts.
func NewRecoveryVoucher(claim *RecoveryClaim, signerKeyPair *crypto.SigningKeyPair, now time.Time) (*RecoveryVoucher, error) {
	if signerKeyPair.PublicKey.Equal(claim.OldPK) || signerKeyPair.PublicKey.Equal(claim.NewPK) {
		return nil, ErrSelfVouching
	}
	msg := voucherMessage(claim.OldPK, claim.NewPK)
	return &RecoveryVoucher{
		OldPK:     claim.OldPK,
		NewPK:     claim.NewPK,
		SignerPK:  signerKeyPair.PublicKey,
		Signature: signerKeyPair.Sign(msg),
		Timestamp: now,
	}, nil
}

// Verify checks the voucher's signature against its claimed signer.
func (v *RecoveryVoucher) Verify() error {
	msg := voucherMessage(v.OldPK, v.NewPK)
	if !crypto.Verify(v.SignerPK, msg, v.Signature) {
		return fmt.Errorf("%w: voucher from %x", ErrInvalidSignature, v.SignerPK)
	}
	return nil
}
