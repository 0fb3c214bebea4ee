package relay

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically expires stale blobs (spec.md §4.9: "a sweeper
// expires stale blobs every cleanup_interval (default 60s)").
type Sweeper struct {
	store    BlobStore
	interval time.Duration
	stop     chan struct{}
}

// NewSweeper builds a sweeper over store, running every interval.
func NewSweeper(store BlobStore, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, stop: make(chan struct{})}
}

// Run blocks, sweeping on each tick until Stop is called.
func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.store.SweepExpired(context.Background(), time.Now())
			if err != nil {
				log.Printf("relay: sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("relay: swept %d expired blob(s)", removed)
			}
		case <-s.stop:
			return
		}
	}
}

// Stop halts the sweeper's Run loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}
