package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientState is the relay client connection state machine (spec.md §4.8).
type ClientState int

const (
	Disconnected ClientState = iota
	Connecting
	HandshakeSent
	Connected
	Reconnecting
)

func (s ClientState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case HandshakeSent:
		return "HandshakeSent"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// Defaults per spec.md §4.8.
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultIOTimeout          = 30 * time.Second
	DefaultMaxReconnectTries  = 5
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultMaxPendingMessages = 100
	DefaultAckTimeout         = 30 * time.Second
)

// ErrQueueFull is returned by EnqueueOutbound once the outbound queue
// hits max_pending_messages while the client is not Connected.
var ErrQueueFull = fmt.Errorf("network: outbound queue full")

// ErrAuthenticationFailed mirrors NetworkError::AuthenticationFailed:
// the relay rejected the client's handshake signature.
var ErrAuthenticationFailed = fmt.Errorf("network: handshake authentication failed")

// Client drives one relay connection's state machine, reconnect
// backoff, and outbound queueing while disconnected (spec.md §4.8).
type Client struct {
	mu    sync.Mutex
	state ClientState

	transport Transport
	dialFunc  func(ctx context.Context) (Transport, error)

	identity    ed25519.PrivateKey
	identityPub ed25519.PublicKey

	attempt int

	maxPending int
	outbound   []*Envelope

	pending map[string]time.Time // message_id -> ack deadline
}

// NewClient builds a relay client that dials via dialFunc and
// authenticates with identity.
func NewClient(identity ed25519.PrivateKey, dialFunc func(ctx context.Context) (Transport, error)) *Client {
	return &Client{
		state:       Disconnected,
		transport:   nil,
		dialFunc:    dialFunc,
		identity:    identity,
		identityPub: identity.Public().(ed25519.PublicKey),
		maxPending:  DefaultMaxPendingMessages,
		pending:     make(map[string]time.Time),
	}
}

// State returns the current connection state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect runs Disconnected -> Connecting -> HandshakeSent -> Connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	t, err := c.dialFunc(dialCtx)
	if err != nil {
		c.mu.Lock()
		c.state = Reconnecting
		c.attempt = 1
		c.mu.Unlock()
		return fmt.Errorf("network: connect: %w", err)
	}

	c.mu.Lock()
	c.transport = t
	c.state = HandshakeSent
	c.mu.Unlock()

	if err := c.handshake(ctx, t); err != nil {
		c.mu.Lock()
		c.state = Reconnecting
		c.attempt = 1
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = Connected
	c.attempt = 0
	c.mu.Unlock()
	return c.flushOutbound(ctx)
}

func (c *Client) handshake(ctx context.Context, t Transport) error {
	var nonce [32]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("network: handshake nonce: %w", err)
	}
	sig := ed25519.Sign(c.identity, append([]byte("VAUCHI-HS"), nonce[:]...))

	hs := HandshakePayload{Nonce: nonce}
	copy(hs.IdentityPublicKey[:], c.identityPub)
	copy(hs.Signature[:], sig)

	env, err := buildHandshakeEnvelope(hs)
	if err != nil {
		return err
	}
	return t.Send(ctx, env)
}

// ReconnectDelay computes base·2^(attempt-1) with ±jitter, per
// spec.md §4.8's Reconnecting timing.
func ReconnectDelay(attempt int, base time.Duration) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt-1))
	jitterFrac := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(backoff) * jitterFrac)
}

// Reconnect retries Connect with exponential backoff, abandoning once
// attempt exceeds maxAttempts.
func (c *Client) Reconnect(ctx context.Context, maxAttempts int) error {
	for {
		c.mu.Lock()
		attempt := c.attempt
		c.mu.Unlock()
		if attempt > maxAttempts {
			return fmt.Errorf("network: reconnect abandoned after %d attempts", maxAttempts)
		}

		delay := ReconnectDelay(max(attempt, 1), DefaultReconnectBaseDelay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := c.Connect(ctx); err != nil {
			c.mu.Lock()
			c.attempt++
			c.mu.Unlock()
			continue
		}
		return nil
	}
}

// EnqueueOutbound sends env immediately while Connected, and queues it
// for a later flush in any other state. Returns ErrQueueFull once the
// queue is at capacity.
func (c *Client) EnqueueOutbound(ctx context.Context, env *Envelope) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == Connected {
		return c.transport.Send(ctx, env)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outbound) >= c.maxPending {
		return ErrQueueFull
	}
	c.outbound = append(c.outbound, env)
	return nil
}

func (c *Client) flushOutbound(ctx context.Context) error {
	c.mu.Lock()
	queued := c.outbound
	c.outbound = nil
	t := c.transport
	c.mu.Unlock()

	for _, env := range queued {
		if err := t.Send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func buildHandshakeEnvelope(hs HandshakePayload) (*Envelope, error) {
	body, err := json.Marshal(hs)
	if err != nil {
		return nil, fmt.Errorf("network: marshal handshake: %w", err)
	}
	return &Envelope{
		Version:   EnvelopeVersion,
		MessageID: uuid.New(),
		Timestamp: uint64(time.Now().Unix()),
		Kind:      PayloadHandshake,
		Payload:   body,
	}, nil
}
