package exchange

import (
	"sync"
	"time"
)

// ReplayWindow is how long a QR challenge hash is remembered to detect
// reuse (spec.md §4.4: "recently processed QR challenge hashes for 24h").
const ReplayWindow = 24 * time.Hour

// ReplayCache tracks recently processed QR challenges so a second scan
// of the same QR is rejected with ErrQRAlreadyUsed.
type ReplayCache struct {
	mu      sync.Mutex
	seen    map[[16]byte]time.Time
}

// NewReplayCache creates an empty cache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{seen: make(map[[16]byte]time.Time)}
}

// CheckAndRemember returns ErrQRAlreadyUsed if challenge was already
// processed within the replay window; otherwise it records it and
// returns nil. Entries older than the window are pruned opportunistically.
func (c *ReplayCache) CheckAndRemember(challenge [16]byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(now)

	if seenAt, ok := c.seen[challenge]; ok && now.Sub(seenAt) < ReplayWindow {
		return ErrQRAlreadyUsed
	}
	c.seen[challenge] = now
	return nil
}

func (c *ReplayCache) pruneLocked(now time.Time) {
	for k, t := range c.seen {
		if now.Sub(t) >= ReplayWindow {
			delete(c.seen, k)
		}
	}
}
