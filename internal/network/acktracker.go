package network

import (
	"time"

	"github.com/google/uuid"
)

// TrackPending records that a just-sent update's ack is due by
// now+ackTimeout (spec.md §4.8: "each sent update is tracked with a
// deadline = send_time + ack_timeout_ms").
func (c *Client) TrackPending(messageID uuid.UUID, now time.Time, ackTimeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[messageID.String()] = now.Add(ackTimeout)
}

// ResolveAck clears a tracked deadline once its ack arrives, reporting
// whether it was in fact still pending.
func (c *Client) ResolveAck(messageID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := messageID.String()
	if _, ok := c.pending[key]; !ok {
		return false
	}
	delete(c.pending, key)
	return true
}

// TimedOut returns the message ids whose ack deadline has elapsed as
// of now, clearing them from the tracker so the caller can notify
// each one exactly once.
func (c *Client) TimedOut(now time.Time) []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []uuid.UUID
	for key, deadline := range c.pending {
		if !deadline.After(now) {
			if id, err := uuid.Parse(key); err == nil {
				out = append(out, id)
			}
			delete(c.pending, key)
		}
	}
	return out
}
