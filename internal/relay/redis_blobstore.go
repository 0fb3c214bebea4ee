package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore is a BlobStore backend for a multi-instance relay
// deployment where blobs must be visible to whichever instance the
// recipient eventually reconnects to. **[EXPANSION]** Grounded on
// internal/inbox.RedisInbox's per-recipient ZSET (score = arrival
// nanosecond timestamp, giving FIFO order for free), generalized from
// that package's user-inbox/group-message shape to the relay's plain
// (recipient_id, envelope, ttl) contract.
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore builds a RedisBlobStore over client.
func NewRedisBlobStore(client *redis.Client) *RedisBlobStore {
	return &RedisBlobStore{client: client}
}

func redisBlobKey(recipientID string) string {
	return "vauchi:relay:blobs:" + recipientID
}

type redisBlobEntry struct {
	Envelope  []byte    `json:"envelope"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Put enqueues envelope for recipientID, scored by arrival time so
// TakeFor drains in FIFO order, and resets the key's TTL to this
// call's ttl so an idle recipient's queue is eventually reclaimed by
// Redis itself even if SweepExpired isn't run.
func (r *RedisBlobStore) Put(ctx context.Context, recipientID string, envelope []byte, ttl time.Duration) error {
	now := time.Now()
	entry := redisBlobEntry{Envelope: envelope, StoredAt: now, ExpiresAt: now.Add(ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("relay: marshal redis blob entry: %w", err)
	}

	key := redisBlobKey(recipientID)
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: data})
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// TakeFor returns every non-expired blob queued for recipientID, oldest
// first, and deletes the whole key.
func (r *RedisBlobStore) TakeFor(ctx context.Context, recipientID string) ([]Blob, error) {
	key := redisBlobKey(recipientID)

	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	blobs := make([]Blob, 0, len(members))
	for _, raw := range members {
		var entry redisBlobEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if now.After(entry.ExpiresAt) {
			continue
		}
		blobs = append(blobs, Blob{
			RecipientID: recipientID,
			Envelope:    entry.Envelope,
			StoredAt:    entry.StoredAt,
			ExpiresAt:   entry.ExpiresAt,
		})
	}
	return blobs, nil
}

// SweepExpired is a no-op: Redis reclaims each recipient's key via the
// TTL set in Put, so there's nothing for the periodic sweeper to do
// beyond what Redis already guarantees.
func (r *RedisBlobStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Count returns the total number of queued blobs across all recipients
// matching the relay's key namespace. Intended for metrics/diagnostics,
// not the hot path — it scans rather than maintaining a running total.
func (r *RedisBlobStore) Count(ctx context.Context) (int, error) {
	var cursor uint64
	total := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "vauchi:relay:blobs:*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, k := range keys {
			n, err := r.client.ZCard(ctx, k).Result()
			if err != nil {
				return 0, err
			}
			total += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}
