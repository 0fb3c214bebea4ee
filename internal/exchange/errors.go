package exchange

import "errors"

// Exchange protocol errors (spec.md §7, "Exchange" family).
var (
	ErrInvalidState     = errors.New("exchange: invalid state transition")
	ErrQRExpired        = errors.New("exchange: qr code expired")
	ErrQRAlreadyUsed    = errors.New("exchange: qr code already used")
	ErrBadSignature     = errors.New("exchange: qr signature invalid")
	ErrBadVersion       = errors.New("exchange: unsupported protocol version")
	ErrSelfExchange     = errors.New("exchange: cannot exchange with own identity")
	ErrIdentityMismatch = errors.New("exchange: identity key does not match qr")
)

// ProximityError members (spec.md §4.4).
var (
	ErrProximityTooFar   = errors.New("exchange: proximity check failed, too far")
	ErrProximityTimeout  = errors.New("exchange: proximity check timed out")
	ErrProximityFailed   = errors.New("exchange: proximity check failed")
)
