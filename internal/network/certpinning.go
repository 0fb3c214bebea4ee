package network

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sync"
)

// PinnedCerts validates a TLS leaf certificate against a configured
// set of SHA-256 fingerprints, generalized from the teacher's
// internal/security/certpinning.go PinnedCerts (primary/backup pin
// sets with rotation) to spec.md §4.8's leaf-DER-hash semantics rather
// than the teacher's SPKI-hash semantics.
type PinnedCerts struct {
	mu         sync.RWMutex
	pins       map[string]bool
	backupPins map[string]bool
}

// NewPinnedCerts builds a validator from hex-encoded SHA-256
// fingerprints of DER certificates.
func NewPinnedCerts(pins []string) *PinnedCerts {
	pc := &PinnedCerts{pins: make(map[string]bool), backupPins: make(map[string]bool)}
	for _, p := range pins {
		pc.pins[p] = true
	}
	return pc
}

// AddBackupPin registers a pin for an upcoming certificate rotation.
func (pc *PinnedCerts) AddBackupPin(pin string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.backupPins[pin] = true
}

// RotatePins promotes the backup set to primary.
func (pc *PinnedCerts) RotatePins() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pins = pc.backupPins
	pc.backupPins = make(map[string]bool)
}

// LeafFingerprint computes the SHA-256 hex fingerprint of a DER-encoded
// certificate (spec.md §4.8: "SHA-256 fingerprints of DER certificates").
func LeafFingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// VerifyPeerCertificate implements tls.Config.VerifyPeerCertificate: it
// compares the presented leaf's SHA-256 fingerprint against the pin
// set and aborts on mismatch. If no pins are configured, pinning is a
// no-op (standard TLS chain verification still applies via the
// dialer).
func (pc *PinnedCerts) VerifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if len(pc.pins) == 0 && len(pc.backupPins) == 0 {
		return nil
	}
	if len(rawCerts) == 0 {
		return fmt.Errorf("network: no certificate presented")
	}

	leaf := LeafFingerprint(rawCerts[0])
	if pc.pins[leaf] || pc.backupPins[leaf] {
		return nil
	}
	return fmt.Errorf("network: certificate pinning validation failed: no matching pin")
}

// TLSConfig returns a tls.Config wired to this pin set's verification
// hook, suitable for the WebSocket dialer. Standard chain/hostname
// verification still runs; VerifyPeerCertificate adds the pin check
// on top of it.
func (pc *PinnedCerts) TLSConfig() *tls.Config {
	return &tls.Config{
		VerifyPeerCertificate: pc.VerifyPeerCertificate,
	}
}
