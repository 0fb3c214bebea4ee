// Package network implements the relay wire protocol (spec.md §4.8):
// length-prefixed JSON envelope framing, the pluggable Transport
// capability, anonymous sender ids, the relay client reconnect state
// machine, and certificate pinning.
package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MaxMessageSize bounds a framed envelope (spec.md §4.8).
const MaxMessageSize = 1 << 20 // 1 MiB

// EnvelopeVersion is the only wire version this module produces.
const EnvelopeVersion uint8 = 1

var (
	ErrMessageTooLarge = errors.New("network: framed message exceeds MAX_MESSAGE_SIZE")
	ErrUnknownPayload  = errors.New("network: unknown payload kind")
)

// PayloadKind tags which concrete payload an Envelope carries.
type PayloadKind string

const (
	PayloadHandshake       PayloadKind = "Handshake"
	PayloadEncryptedUpdate PayloadKind = "EncryptedUpdate"
	PayloadAcknowledgment  PayloadKind = "Acknowledgment"
	PayloadPresenceUpdate  PayloadKind = "PresenceUpdate"
	PayloadDeviceSync      PayloadKind = "DeviceSyncMessage"
)

// Envelope is the top-level framed message (spec.md §4.8).
type Envelope struct {
	Version   uint8           `json:"version"`
	MessageID uuid.UUID       `json:"message_id"`
	Timestamp uint64          `json:"timestamp"`
	Kind      PayloadKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// HandshakePayload authenticates a relay client connection.
type HandshakePayload struct {
	IdentityPublicKey [32]byte `json:"identity_public_key"`
	Nonce             [32]byte `json:"nonce"`
	Signature         [64]byte `json:"signature"`
}

// EncryptedUpdatePayload carries one ratchet-sealed sync update.
type EncryptedUpdatePayload struct {
	RecipientID   string `json:"recipient_id"`
	SenderID      [32]byte `json:"sender_id"`
	RatchetHeader []byte `json:"ratchet_header"`
	Ciphertext    []byte `json:"ciphertext"`
}

// AckStatus is the delivery status carried by an Acknowledgment.
type AckStatus string

const (
	AckDelivered           AckStatus = "Delivered"
	AckReceivedByRecipient AckStatus = "ReceivedByRecipient"
	AckFailed              AckStatus = "Failed"
)

// AcknowledgmentPayload confirms (or rejects) a previously sent update.
type AcknowledgmentPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// PresenceUpdatePayload announces a contact's online/offline state.
type PresenceUpdatePayload struct {
	IdentityFingerprint string `json:"identity_fingerprint"`
	Online              bool   `json:"online"`
}

// DeviceSyncPayload carries an inter-device sync message, grounded on
// original_source/webbook-core/src/sync/device_sync.rs's
// DeviceSyncPayload shape (serialized contacts + own card + version).
type DeviceSyncPayload struct {
	ContactsJSON string `json:"contacts_json"`
	OwnCardJSON  string `json:"own_card_json"`
	Version      uint64 `json:"version"`
}

// EncodeEnvelope marshals env and writes it as a big-endian u32 length
// prefix followed by the JSON body (spec.md §4.8 framing).
func EncodeEnvelope(w io.Writer, env *Envelope) error {
	if len(env.Payload) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("network: marshal envelope: %w", err)
	}
	if len(body) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("network: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("network: write body: %w", err)
	}
	return nil
}

// DecodeEnvelope reads one length-prefixed envelope from r.
func DecodeEnvelope(r io.Reader) (*Envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("network: read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("network: read body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("network: unmarshal envelope: %w", err)
	}
	return &env, nil
}
