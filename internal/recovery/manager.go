package recovery

import (
	"time"

	"github.com/vauchi/core/internal/storage"
)

// Manager is the orchestration entry point a device uses on both sides
// of recovery: submitting a rate-limited claim, and recording a
// contact's disposition toward one it received.
type Manager struct {
	store   *storage.Store
	limiter *RateLimiter
}

// NewManager builds a Manager over store, wiring its own RateLimiter.
func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store, limiter: NewRateLimiter(store)}
}

// SubmitClaim rate-limits and records intent to broadcast claim. The
// claim itself still travels out-of-band (QR/URL per spec.md §4.10);
// this only governs how often one old identity may mint a fresh one.
func (m *Manager) SubmitClaim(claim *RecoveryClaim, now time.Time) error {
	if err := claim.Verify(now); err != nil {
		return err
	}
	return m.limiter.Allow(claim.OldPK)
}

// Respond records a contact device's disposition toward claimID. Only
// ResponseAccept is expected to be followed by the caller minting a
// RecoveryVoucher (spec.md §4.10: "only accept produces a voucher");
// Manager does not mint it itself since doing so requires the
// responding contact's own signing key, which this package never
// holds.
func (m *Manager) Respond(resp Response) error {
	return RecordResponse(m.store, resp)
}

// Response returns the previously recorded disposition for claimID, or
// storage.ErrNotFound if the contact hasn't responded yet.
func (m *Manager) Response(claimID string) (Response, error) {
	return LoadResponse(m.store, claimID)
}

// VerifyAndAccept is the receiving side's final check before trusting
// a RecoveryProof enough to rebind a Contact's peer public key: it runs
// VerifyProof and, only on success, returns nil so the caller may
// proceed to update its contact record from OldPK to NewPK.
func VerifyAndAccept(proof *RecoveryProof, known KnownContacts, now time.Time) error {
	return VerifyProof(proof, known, now)
}
