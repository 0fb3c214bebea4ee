package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vauchi/core/internal/metrics"
)

// Sender delivers one pre-framed envelope to a single live connection.
// The websocket (or mock, in tests) transport implements this.
type Sender interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// Fanout is the [EXPANSION] cross-instance delivery hook: when a
// recipient is connected to a different relay instance than the one
// that received the envelope, Publish hands the frame to the shared
// bus so that instance's subscriber can forward it live. Grounded on
// internal/pubsub.RedisClient's per-user channel pattern
// (PublishToDevice/SubscribeToMessages), inverted here to a single
// per-recipient channel instead of per-device/per-server channels
// since the relay has no notion of "server a user's other device is
// on" — only whether any connected instance currently holds the
// recipient's identity.
type Fanout interface {
	Publish(ctx context.Context, recipientID string, frame []byte) error
}

// Hub routes envelopes by recipient identity (spec.md §4.9): forward
// synchronously to a live local connection, otherwise queue in the
// blob store. Connections are one per identity — a new registration
// for an identity already present replaces the old one, matching "the
// client currently connected under identity I" (singular).
type Hub struct {
	mu          sync.RWMutex
	byIdentity  map[string]Sender
	blobs       BlobStore
	limiter     Limiter
	blobTTL     time.Duration
	maxConns    int
	activeConns int

	fanout Fanout // optional
}

// NewHub builds a Hub over the given blob store and limiter.
// maxConns is the global connection cap (spec.md §4.9: "Global cap
// max_connections"); 0 means unbounded.
func NewHub(blobs BlobStore, limiter Limiter, blobTTL time.Duration, maxConns int) *Hub {
	return &Hub{
		byIdentity: make(map[string]Sender),
		blobs:      blobs,
		limiter:    limiter,
		blobTTL:    blobTTL,
		maxConns:   maxConns,
	}
}

// WithFanout attaches a cross-instance Fanout publisher.
func (h *Hub) WithFanout(f Fanout) *Hub {
	h.fanout = f
	return h
}

// Register associates identity with a live sender, replacing any
// prior connection under the same identity. It returns an error if
// the global connection cap is already reached.
func (h *Hub) Register(identity string, sender Sender) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, replacing := h.byIdentity[identity]
	if !replacing && h.maxConns > 0 && h.activeConns >= h.maxConns {
		metrics.VauchiRelayRejectionsTotal.WithLabelValues("connection_limit").Inc()
		return ErrConnectionLimitReached
	}
	if !replacing {
		h.activeConns++
	}
	h.byIdentity[identity] = sender
	metrics.VauchiRelayActiveConnections.Set(float64(h.activeConns))
	return nil
}

// Unregister removes identity's connection if sender is still the
// currently registered one (a superseding Register must not be
// clobbered by a late Unregister from the connection it replaced).
func (h *Hub) Unregister(identity string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.byIdentity[identity]; ok && current == sender {
		delete(h.byIdentity, identity)
		h.activeConns--
		metrics.VauchiRelayActiveConnections.Set(float64(h.activeConns))
	}
}

func (h *Hub) localSender(identity string) (Sender, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.byIdentity[identity]
	return s, ok
}

// DeliveryOutcome reports where an envelope landed.
type DeliveryOutcome int

const (
	DeliveredToConnection DeliveryOutcome = iota
	DeliveredToBlobStore
)

// Route delivers frame to recipientID: synchronously to a live local
// connection when present (spec.md §4.9: "forwarded synchronously and
// an ack is returned"), otherwise into the blob store, with a best-
// effort fan-out publish so a differently-instanced connection can
// also receive it live.
func (h *Hub) Route(ctx context.Context, recipientID string, frame []byte) (DeliveryOutcome, error) {
	if recipientID == "" {
		return 0, ErrUnknownRecipient
	}

	if sender, ok := h.localSender(recipientID); ok {
		if err := sender.SendFrame(ctx, frame); err == nil {
			metrics.VauchiRelaySendsTotal.WithLabelValues("local").Inc()
			return DeliveredToConnection, nil
		}
		// Fall through to blob store: the connection is dead but
		// hasn't been unregistered yet.
	}

	if h.fanout != nil {
		if err := h.fanout.Publish(ctx, recipientID, frame); err != nil {
			metrics.VauchiRelaySendsTotal.WithLabelValues("fanout_error").Inc()
		}
	}

	if err := h.blobs.Put(ctx, recipientID, frame, h.blobTTL); err != nil {
		return 0, fmt.Errorf("relay: queue blob: %w", err)
	}
	metrics.VauchiRelayBlobsStoredTotal.Inc()
	metrics.VauchiRelaySendsTotal.WithLabelValues("queued").Inc()
	return DeliveredToBlobStore, nil
}

// DeliverFanout is called by a Fanout subscriber when another instance
// published a frame for a locally-connected recipient.
func (h *Hub) DeliverFanout(ctx context.Context, recipientID string, frame []byte) {
	if sender, ok := h.localSender(recipientID); ok {
		_ = sender.SendFrame(ctx, frame)
	}
}

// Drain returns and clears every blob queued for identity (spec.md
// §4.9: "take_for(recipient_id) returns pending envelopes in FIFO
// order and deletes them"), used when a recipient connects or polls.
func (h *Hub) Drain(ctx context.Context, identity string) ([]Blob, error) {
	return h.blobs.TakeFor(ctx, identity)
}

// Allow checks the per-connection rate limiter, recording a rejection
// metric on denial (spec.md §4.9).
func (h *Hub) Allow(ctx context.Context, connectionID string) (bool, error) {
	ok, err := h.limiter.Allow(ctx, connectionID)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.VauchiRelayRejectionsTotal.WithLabelValues("rate_limit").Inc()
	}
	return ok, nil
}

// ActiveConnections returns the current local connection count.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeConns
}
