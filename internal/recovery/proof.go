package recovery

import (
	"crypto/ed25519"
	"time"

	"github.com/vauchi/core/internal/identity"
)

// RecoverySettings controls how many vouchers a recovering identity
// needs, and how many of those the verifier's own device insists on
// checking in person before counting them (spec.md §4.10).
type RecoverySettings struct {
	Threshold             int
	VerificationThreshold int
}

// DefaultThreshold is the number of distinct vouchers required absent
// an explicit RecoverySettings (spec.md §4.10).
const DefaultThreshold = 3

// NewRecoverySettings validates and builds a RecoverySettings.
func NewRecoverySettings(threshold, verificationThreshold int) (RecoverySettings, error) {
	if threshold < 1 || threshold > 10 {
		return RecoverySettings{}, ErrThresholdOutOfRange
	}
	if verificationThreshold < 1 || verificationThreshold > threshold {
		return RecoverySettings{}, ErrVerificationThresholdOutOfRange
	}
	return RecoverySettings{Threshold: threshold, VerificationThreshold: verificationThreshold}, nil
}

// DefaultRecoverySettings returns the default threshold-3 settings with
// verification threshold equal to threshold.
func DefaultRecoverySettings() RecoverySettings {
	return RecoverySettings{Threshold: DefaultThreshold, VerificationThreshold: DefaultThreshold}
}

// RecoveryProof bundles a claim with enough vouchers to meet a
// threshold.
type RecoveryProof struct {
	OldPK     ed25519.PublicKey
	NewPK     ed25519.PublicKey
	Claim     *RecoveryClaim
	Vouchers  []RecoveryVoucher
	Threshold int
}

// KnownContacts is the set of an old identity's previously-known
// contact public keys at the time of loss, hex-fingerprint keyed,
// attested by the claim package out of band (spec.md §4.10: "the set
// of voucher-signer public keys must be a subset of the claimer's
// previously-known contacts for the old_pk at the time of loss").
type KnownContacts map[string]struct{}

// VerifyProof validates a proof per spec.md §3 and §4.10:
//   - the claim itself verifies and is fresh (< 48h old);
//   - every voucher signature verifies;
//   - voucher signer public keys are pairwise distinct;
//   - every signer is among the claimer's previously-known contacts;
//   - at least Threshold vouchers are present.
func VerifyProof(proof *RecoveryProof, known KnownContacts, now time.Time) error {
	if proof.Claim == nil {
		return ErrInvalidSignature
	}
	if err := proof.Claim.Verify(now); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(proof.Vouchers))
	valid := 0
	for i := range proof.Vouchers {
		v := &proof.Vouchers[i]
		if !v.OldPK.Equal(proof.OldPK) || !v.NewPK.Equal(proof.NewPK) {
			return ErrInvalidSignature
		}
		if err := v.Verify(); err != nil {
			return err
		}

		signer := identity.Fingerprint(v.SignerPK)
		if _, dup := seen[signer]; dup {
			return ErrDuplicateSigner
		}
		seen[signer] = struct{}{}

		if known != nil {
			if _, ok := known[signer]; !ok {
				return ErrUnknownSigner
			}
		}

		valid++
	}

	if valid < proof.Threshold {
		return ErrInsufficientVouchers
	}
	return nil
}
