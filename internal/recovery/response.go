package recovery

import (
	"encoding/json"
	"time"

	"github.com/vauchi/core/internal/storage"
)

// ResponseKind is a contact device's disposition toward one recovery
// claim (spec.md §4.10: "accept, reject, or remind_me_later(ts); only
// accept produces a voucher").
type ResponseKind string

const (
	ResponseAccept        ResponseKind = "accept"
	ResponseReject        ResponseKind = "reject"
	ResponseRemindMeLater ResponseKind = "remind_me_later"
)

// Response is one contact device's recorded disposition toward a
// RecoveryClaim, upserted by claim-id (internal/storage.Store
// enforces the unique constraint).
type Response struct {
	ClaimID     string
	Kind        ResponseKind
	RemindAt    time.Time
	RespondedAt time.Time
}

type responsePayload struct {
	Kind     ResponseKind `json:"kind"`
	RemindAt int64        `json:"remind_at,omitempty"`
}

// RecordResponse upserts resp into store, keyed by resp.ClaimID.
func RecordResponse(store *storage.Store, resp Response) error {
	payload := responsePayload{Kind: resp.Kind}
	if resp.Kind == ResponseRemindMeLater {
		payload.RemindAt = resp.RemindAt.Unix()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return store.SaveRecoveryResponse(resp.ClaimID, encoded, resp.RespondedAt)
}

// LoadResponse returns the recorded response for claimID, or
// storage.ErrNotFound if none exists yet.
func LoadResponse(store *storage.Store, claimID string) (Response, error) {
	raw, respondedAt, err := store.LoadRecoveryResponse(claimID)
	if err != nil {
		return Response{}, err
	}

	var payload responsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Response{}, err
	}

	resp := Response{ClaimID: claimID, Kind: payload.Kind, RespondedAt: respondedAt}
	if payload.Kind == ResponseRemindMeLater {
		resp.RemindAt = time.Unix(payload.RemindAt, 0)
	}
	return resp, nil
}
