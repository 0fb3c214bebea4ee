// Package relay implements the relay server side of spec.md §4.9: a
// blob store for offline recipients, a per-connection rate limiter,
// and synchronous forwarding for recipients that are currently
// connected. It is the server counterpart to internal/network's
// client-side Transport and Client.
package relay

import "errors"

var (
	// ErrRateLimited names a connection exceeding its rate allowance.
	// Limiter.Allow reports that case as false rather than returning
	// this error, and Server closes the connection with the close
	// reason "rate_limit" (spec.md §4.9).
	ErrRateLimited = errors.New("relay: rate limit exceeded")

	// ErrConnectionLimitReached is returned when max_connections is
	// already at capacity.
	ErrConnectionLimitReached = errors.New("relay: global connection limit reached")

	// ErrBlobNotFound names the no-pending-blob condition. The bundled
	// backends do not return it: TakeFor reports that case as an empty
	// result with a nil error.
	ErrBlobNotFound = errors.New("relay: no pending blob")

	// ErrUnknownRecipient is returned when an envelope carries no
	// resolvable recipient identity.
	ErrUnknownRecipient = errors.New("relay: envelope has no recipient identity")
)
