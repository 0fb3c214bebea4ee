package exchange

import (
	"context"
	"time"
)

// ProximityVerifier is a small capability bundle, following the
// teacher's HSMProvider-style interface discipline
// (internal/security/hsm.go: a fixed set of operations, swappable
// backends): implementations verify that two exchanging devices are
// physically close before key agreement proceeds (spec.md §4.4).
type ProximityVerifier interface {
	VerifyProximity(ctx context.Context, challenge []byte, timeout time.Duration) error
}

// DefaultBLERSSIThreshold is the default acceptable signal strength,
// roughly 2 meters indoors (spec.md §4.4).
const DefaultBLERSSIThreshold = -60

// AudioVerifier implements an ultrasonic challenge round-trip: the
// initiator emits an audio pattern derived from the challenge and
// listens for the responder's derived reply tone within the timeout.
// This is a contract stub — the actual audio codec is a platform
// concern outside this module's scope.
type AudioVerifier struct {
	// RoundTrip performs the actual emit/listen cycle and reports
	// whether the expected reply pattern was observed.
	RoundTrip func(ctx context.Context, challenge []byte, timeout time.Duration) (bool, error)
}

func (v *AudioVerifier) VerifyProximity(ctx context.Context, challenge []byte, timeout time.Duration) error {
	if v.RoundTrip == nil {
		return ErrProximityFailed
	}
	ok, err := v.RoundTrip(ctx, challenge, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ErrProximityTimeout
		}
		return ErrProximityFailed
	}
	if !ok {
		return ErrProximityFailed
	}
	return nil
}

// BLEVerifier accepts proximity when the measured RSSI is at or above
// a threshold (closer devices have a less negative RSSI).
type BLEVerifier struct {
	Threshold  int
	MeasureRSSI func(ctx context.Context, challenge []byte, timeout time.Duration) (int, error)
}

func (v *BLEVerifier) VerifyProximity(ctx context.Context, challenge []byte, timeout time.Duration) error {
	threshold := v.Threshold
	if threshold == 0 {
		threshold = DefaultBLERSSIThreshold
	}
	if v.MeasureRSSI == nil {
		return ErrProximityFailed
	}
	rssi, err := v.MeasureRSSI(ctx, challenge, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ErrProximityTimeout
		}
		return ErrProximityFailed
	}
	if rssi < threshold {
		return ErrProximityTooFar
	}
	return nil
}

// ManualVerifier accepts proximity once an operator confirms the two
// devices are in the same room (a human-in-the-loop check).
type ManualVerifier struct {
	Confirm func(ctx context.Context) (bool, error)
}

func (v *ManualVerifier) VerifyProximity(ctx context.Context, challenge []byte, timeout time.Duration) error {
	if v.Confirm == nil {
		return ErrProximityFailed
	}
	confirmed, err := v.Confirm(ctx)
	if err != nil {
		return ErrProximityFailed
	}
	if !confirmed {
		return ErrProximityFailed
	}
	return nil
}

// MockVerifier is a test double that always succeeds, or returns a
// preset error when Err is set.
type MockVerifier struct {
	Err error
}

func (v *MockVerifier) VerifyProximity(ctx context.Context, challenge []byte, timeout time.Duration) error {
	return v.Err
}
