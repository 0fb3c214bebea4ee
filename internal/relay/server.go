package relay

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vauchi/core/internal/network"
)

// handshakeDomain must match internal/network.Client's handshake
// signing prefix exactly.
const handshakeDomain = "VAUCHI-HS"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSender adapts one accepted *websocket.Conn to the Hub's Sender
// interface, serializing concurrent writes the way
// internal/network.WebSocketTransport does.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) SendFrame(_ context.Context, frame []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Server accepts relay client connections over WebSocket, authenticates
// the handshake, and routes subsequent envelopes through a Hub
// (spec.md §4.9).
type Server struct {
	hub *Hub
}

// NewServer builds a Server over hub.
func NewServer(hub *Hub) *Server {
	return &Server{hub: hub}
}

// ServeWS upgrades the request and runs the connection until it
// closes or errors.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	identity, err := s.authenticate(conn)
	if err != nil {
		log.Printf("relay: handshake failed: %v", err)
		return
	}

	sender := &wsSender{conn: conn}
	if err := s.hub.Register(identity, sender); err != nil {
		log.Printf("relay: registration rejected for %s: %v", identity, err)
		return
	}
	defer s.hub.Unregister(identity, sender)

	s.deliverQueuedBlobs(identity, sender)
	s.readLoop(conn, identity)
}

func (s *Server) authenticate(conn *websocket.Conn) (string, error) {
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("relay: read handshake frame: %w", err)
	}

	var env network.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", fmt.Errorf("relay: decode handshake envelope: %w", err)
	}
	if env.Kind != network.PayloadHandshake {
		return "", fmt.Errorf("relay: expected Handshake envelope, got %s", env.Kind)
	}

	var hs network.HandshakePayload
	if err := json.Unmarshal(env.Payload, &hs); err != nil {
		return "", fmt.Errorf("relay: decode handshake payload: %w", err)
	}

	signed := append([]byte(handshakeDomain), hs.Nonce[:]...)
	if !ed25519.Verify(hs.IdentityPublicKey[:], signed, hs.Signature[:]) {
		return "", errors.New("relay: handshake signature invalid")
	}

	return hex.EncodeToString(hs.IdentityPublicKey[:]), nil
}

func (s *Server) deliverQueuedBlobs(identity string, sender Sender) {
	blobs, err := s.hub.Drain(context.Background(), identity)
	if err != nil {
		log.Printf("relay: drain blobs for %s: %v", identity, err)
		return
	}
	for _, b := range blobs {
		if err := sender.SendFrame(context.Background(), b.Envelope); err != nil {
			log.Printf("relay: redeliver queued blob to %s: %v", identity, err)
			return
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, identity string) {
	ctx := context.Background()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		ok, err := s.hub.Allow(ctx, identity)
		if err != nil {
			log.Printf("relay: rate limiter error for %s: %v", identity, err)
			return
		}
		if !ok {
			s.writeRejection(conn, "rate_limit")
			return
		}

		var env network.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}

		switch env.Kind {
		case network.PayloadEncryptedUpdate:
			var payload network.EncryptedUpdatePayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}
			if _, err := s.hub.Route(ctx, payload.RecipientID, frame); err != nil {
				log.Printf("relay: route from %s: %v", identity, err)
				continue
			}
			s.writeAck(conn, env, network.AckDelivered)
		case network.PayloadPresenceUpdate, network.PayloadDeviceSync:
			// Presence and device-sync messages are not routed by
			// recipient identity; they're reserved for future
			// multi-device fan-out (spec.md §4.8 payload kinds) and
			// are acknowledged but otherwise ignored by the relay.
			s.writeAck(conn, env, network.AckDelivered)
		}
	}
}

func (s *Server) writeAck(conn *websocket.Conn, original network.Envelope, status network.AckStatus) {
	payload, err := json.Marshal(network.AcknowledgmentPayload{
		MessageID: original.MessageID,
		Status:    status,
	})
	if err != nil {
		return
	}
	ack := network.Envelope{
		Version:   network.EnvelopeVersion,
		MessageID: original.MessageID,
		Timestamp: uint64(time.Now().Unix()),
		Kind:      network.PayloadAcknowledgment,
		Payload:   payload,
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Server) writeRejection(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}
