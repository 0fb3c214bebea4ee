// Package sync computes card deltas, reconciles concurrent updates via
// version vectors, and drives the pending-update retry queue
// (spec.md §4.7), grounded on original_source's
// webbook-core/src/sync/device_sync.rs contact-sync payload shape and
// the teacher's internal/security/async_audit.go retry/backoff/
// dead-letter pattern.
package sync

import "errors"

var (
	// ErrFieldNotFound is returned by Apply when a delta references a
	// field-id absent from the target card.
	ErrFieldNotFound = errors.New("sync: delta references a field not present in card")
	// ErrPermanentFailure marks an update that exhausted its retry
	// budget (spec.md §4.7: "max 8 retries before permanent-failure event").
	ErrPermanentFailure = errors.New("sync: update permanently failed after max retries")
	// ErrQueueEmpty names the nothing-is-due condition. TakeNext does
	// not return it: it reports that case as an empty result with a
	// nil error.
	ErrQueueEmpty = errors.New("sync: no pending update is due")
)
