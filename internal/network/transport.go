package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Keepalive timing, carried over from the teacher's
// internal/websocket/client.go constants of the same name.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Transport is the capability interface a relay client sends/receives
// framed envelopes over (spec.md §9: swappable transport contract).
type Transport interface {
	Send(ctx context.Context, env *Envelope) error
	Receive(ctx context.Context) (*Envelope, error)
	Close() error
}

// WebSocketTransport implements Transport over a gorilla/websocket
// connection, with the teacher's ping/pong keepalive discipline.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool

	pingStop chan struct{}
}

// DialWebSocket connects to url and starts the keepalive pinger.
func DialWebSocket(url string) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("network: dial: %w", err)
	}
	t := &WebSocketTransport{conn: conn, pingStop: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go t.pingLoop()
	return t, nil
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-t.pingStop:
			return
		}
	}
}

// Send writes env as a length-prefixed JSON frame over one WebSocket
// binary message.
func (t *WebSocketTransport) Send(ctx context.Context, env *Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))

	w, err := t.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return fmt.Errorf("network: next writer: %w", err)
	}
	if err := EncodeEnvelope(w, env); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Receive reads the next framed envelope from the connection.
func (t *WebSocketTransport) Receive(ctx context.Context) (*Envelope, error) {
	_, r, err := t.conn.NextReader()
	if err != nil {
		return nil, fmt.Errorf("network: next reader: %w", err)
	}
	return DecodeEnvelope(r)
}

// Close stops the keepalive pinger and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.pingStop)
	return t.conn.Close()
}

// MockTransport is an in-memory Transport for tests: Send appends to
// Sent, Receive drains Inbox.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []*Envelope
	Inbox  chan *Envelope
	closed bool
}

// NewMockTransport returns a MockTransport with a buffered inbox.
func NewMockTransport() *MockTransport {
	return &MockTransport{Inbox: make(chan *Envelope, 64)}
}

func (m *MockTransport) Send(ctx context.Context, env *Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("network: transport closed")
	}
	m.Sent = append(m.Sent, env)
	return nil
}

func (m *MockTransport) Receive(ctx context.Context) (*Envelope, error) {
	select {
	case env, ok := <-m.Inbox:
		if !ok {
			return nil, fmt.Errorf("network: transport closed")
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.Inbox)
	}
	return nil
}
