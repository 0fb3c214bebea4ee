package ratchet

import "errors"

// Error kinds for the Double Ratchet component (spec.md §7, "Ratchet"
// family). A failure here never aborts the session: the caller simply
// drops the offending message and the chain continues.
var (
	// ErrReplay is returned when a message's (remote-DH, index) pair has
	// already been consumed, or addresses an index before the current
	// receiving position that was never stored (so it can only be a
	// resend of something already decrypted).
	ErrReplay = errors.New("ratchet: replayed message")
	// ErrKeyExpired is returned when a message key that would have
	// covered this index was evicted from the bounded skipped-key store
	// before the message arrived.
	ErrKeyExpired = errors.New("ratchet: message key expired")
	// ErrDeserialization is returned when a persisted ratchet state
	// fails structural validation on load.
	ErrDeserialization = errors.New("ratchet: state deserialization failed")
	// ErrDecryptFailed wraps an AEAD authentication failure during Open.
	ErrDecryptFailed = errors.New("ratchet: decryption failed")
	// ErrSessionNotInitialized is returned by Seal when the sending
	// chain has not yet been keyed (e.g. a responder that hasn't
	// received a first message).
	ErrSessionNotInitialized = errors.New("ratchet: sending chain not initialized")
)
