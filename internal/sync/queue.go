package sync

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/vauchi/core/internal/storage"
)

// MaxRetries caps a pending update at 8 retries before it is treated
// as a permanent failure (spec.md §4.7).
const MaxRetries = 8

// maxBackoffSeconds is the exponential backoff ceiling.
const maxBackoffSeconds = 300

// Backoff computes the retry delay for the given retry count:
// min(2^retry_count, 300) seconds, jittered by ±20% (spec.md §4.7).
func Backoff(retryCount int) time.Duration {
	base := 1 << retryCount
	if base > maxBackoffSeconds || retryCount >= 9 {
		base = maxBackoffSeconds
	}
	jitterFrac := 0.8 + rand.Float64()*0.4 // [0.8, 1.2)
	seconds := float64(base) * jitterFrac
	return time.Duration(seconds * float64(time.Second))
}

// Queue drives the pending-update retry lifecycle on top of the
// persisted storage.Store rows (spec.md §4.7): enqueue, take_next,
// ack, and negative-ack/timeout with backoff.
type Queue struct {
	store *storage.Store
}

// NewQueue wraps a storage.Store.
func NewQueue(store *storage.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue persists a new update in the Pending state.
func (q *Queue) Enqueue(contactID uuid.UUID, updateType string, encryptedPayload []byte, now time.Time) (uuid.UUID, error) {
	id := uuid.New()
	rec := storage.PendingUpdateRecord{
		UpdateID:         id,
		ContactID:        contactID,
		UpdateType:       updateType,
		EncryptedPayload: encryptedPayload,
		CreatedAt:        now,
		RetryCount:       0,
		Status:           storage.PendingUpdateStatus{State: "pending"},
	}
	if err := q.store.SaveOrUpdatePendingUpdate(rec); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// TakeNext returns updates due for (re)transmission in FIFO order and
// marks each InFlight.
func (q *Queue) TakeNext(now time.Time, limit int) ([]storage.PendingUpdateRecord, error) {
	due, err := q.store.TakeNextPending(now, limit)
	if err != nil {
		return nil, err
	}
	for i := range due {
		due[i].Status = storage.PendingUpdateStatus{State: "in_flight"}
		if err := q.store.SaveOrUpdatePendingUpdate(due[i]); err != nil {
			return nil, err
		}
	}
	return due, nil
}

// Ack deletes an update once the relay has confirmed delivery.
func (q *Queue) Ack(updateID uuid.UUID) error {
	return q.store.DeletePendingUpdate(updateID)
}

// Fail records a negative-ack or timeout. Once retry_count exceeds
// MaxRetries it returns ErrPermanentFailure and the caller should stop
// retrying (the row is retained so the caller can inspect/report it,
// mirroring the teacher's dead-letter handling in
// internal/security/async_audit.go).
func (q *Queue) Fail(rec storage.PendingUpdateRecord, reason string, now time.Time) error {
	rec.RetryCount++
	if rec.RetryCount > MaxRetries {
		rec.Status = storage.PendingUpdateStatus{State: "failed", Reason: reason, RetryAt: now}
		if err := q.store.SaveOrUpdatePendingUpdate(rec); err != nil {
			return err
		}
		return fmt.Errorf("%w: update %s: %s", ErrPermanentFailure, rec.UpdateID, reason)
	}
	retryAt := now.Add(Backoff(rec.RetryCount))
	rec.Status = storage.PendingUpdateStatus{State: "failed", Reason: reason, RetryAt: retryAt}
	return q.store.SaveOrUpdatePendingUpdate(rec)
}
