// Package recovery implements social contact recovery (spec.md §4.10):
// a user who lost every device issues a RecoveryClaim for a fresh
// identity, existing contacts vouch for the bearer in person, and a
// RecoveryProof assembled from enough distinct vouchers lets peers
// re-bind their Contact record to the new public key. Grounded on
// original_source's vauchi-core/src/recovery module for the error
// taxonomy and threshold rules, and on the teacher's
// internal/security/recovery.go for the package's overall shape
// (though that file solves password-based backup recovery, not social
// vouching, so only its structure — not its BIP39 mechanism — carries
// over).
package recovery

import "errors"

var (
	// ErrInsufficientVouchers is returned by VerifyProof when fewer
	// than the threshold number of valid, distinct-signer vouchers are
	// present.
	ErrInsufficientVouchers = errors.New("recovery: insufficient vouchers to meet threshold")
	// ErrDuplicateSigner is returned when two vouchers in the same
	// proof share a signer public key.
	ErrDuplicateSigner = errors.New("recovery: duplicate voucher signer")
	// ErrInvalidSignature is returned when a voucher or claim signature
	// fails to verify.
	ErrInvalidSignature = errors.New("recovery: invalid signature")
	// ErrUnknownSigner is returned when a voucher's signer is not among
	// the claimer's previously-known contacts for the old identity.
	ErrUnknownSigner = errors.New("recovery: voucher signer is not a previously-known contact")
	// ErrClaimExpired is returned when a claim or proof is older than
	// the 48h freshness window (spec.md §4.10).
	ErrClaimExpired = errors.New("recovery: claim is older than 48h")
	// ErrSelfVouching is returned when a voucher's signer key equals
	// the claim's own old or new public key.
	ErrSelfVouching = errors.New("recovery: cannot vouch for your own recovery")
	// ErrThresholdOutOfRange is returned by NewRecoverySettings when
	// threshold is outside [1, 10].
	ErrThresholdOutOfRange = errors.New("recovery: threshold must be between 1 and 10")
	// ErrVerificationThresholdOutOfRange is returned when
	// verification_threshold is below 1 or above threshold.
	ErrVerificationThresholdOutOfRange = errors.New("recovery: verification threshold must be between 1 and the recovery threshold")
	// ErrRateLimitExceeded is returned when an identity has already
	// issued 3 claims within the current 24h window.
	ErrRateLimitExceeded = errors.New("recovery: rate limit exceeded")
)
