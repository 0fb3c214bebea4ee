package recovery

import (
	"crypto/ed25519"
	"time"

	"github.com/vauchi/core/internal/clock"
	"github.com/vauchi/core/internal/identity"
	"github.com/vauchi/core/internal/storage"
)

// RateLimitWindow and MaxClaimsPerWindow implement spec.md §4.10:
// "per old_pk, at most 3 claims per 24h window".
const (
	RateLimitWindow    = 24 * time.Hour
	MaxClaimsPerWindow = 3
)

// RateLimiter enforces the per-old_pk claim rate limit against the
// recovery_rate_limits table (internal/storage.Store), the same table
// the claim's eventual recipients consult before processing one more
// claim for the same lost identity.
type RateLimiter struct {
	store *storage.Store
	clock clock.Clock
}

// NewRateLimiter builds a RateLimiter backed by store, using the real
// wall clock.
func NewRateLimiter(store *storage.Store) *RateLimiter {
	return &RateLimiter{store: store, clock: clock.Real{}}
}

// WithClock overrides the limiter's time source, for deterministic
// tests of the 24h window boundary.
func (r *RateLimiter) WithClock(c clock.Clock) *RateLimiter {
	r.clock = c
	return r
}

// Allow records one more claim attempt for oldPK, returning
// ErrRateLimitExceeded if this would be the 4th claim inside the
// current 24h window. A claim outside the window starts a fresh one.
func (r *RateLimiter) Allow(oldPK ed25519.PublicKey) error {
	key := identity.Fingerprint(oldPK)
	now := r.clock.Now()

	rl, err := r.store.LoadRecoveryRateLimit(key)
	if err != nil {
		return err
	}

	if rl.WindowStart.IsZero() || now.Sub(rl.WindowStart) > RateLimitWindow {
		rl = storage.RecoveryRateLimit{IdentityPK: key, Count: 0, WindowStart: now}
	}

	if rl.Count >= MaxClaimsPerWindow {
		return ErrRateLimitExceeded
	}

	rl.Count++
	return r.store.SaveRecoveryRateLimit(rl)
}
