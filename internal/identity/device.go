package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vauchi/core/internal/crypto"
)

const (
	// MaxActiveDevices bounds the registry at 16 active records
	// (spec.md §4.3).
	MaxActiveDevices = 16

	deviceHKDFInfo = "VAUCHI-DEVICE"
)

// DeviceID is the first 16 bytes of SHA-256 over a device's public key.
type DeviceID [16]byte

// DeviceRecord is one entry in an identity's device registry.
type DeviceRecord struct {
	Index     uint32
	Name      string
	DeviceID  DeviceID
	PublicKey ed25519.PublicKey
	Active    bool
	// Signature is the primary device's signature (identity signing
	// key) over the record's canonical fields, proving the registry
	// entry was authorized rather than self-asserted.
	Signature []byte
}

func canonicalRecordBytes(index uint32, name string, deviceID DeviceID, publicKey ed25519.PublicKey, active bool) []byte {
	b := make([]byte, 0, 4+len(name)+16+len(publicKey)+1)
	b = binary.BigEndian.AppendUint32(b, index)
	b = append(b, []byte(name)...)
	b = append(b, deviceID[:]...)
	b = append(b, publicKey...)
	if active {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return b
}

// deriveDeviceKey derives a per-device Ed25519 signing key from the
// identity's master seed via HKDF with info "VAUCHI-DEVICE" ‖ index_LE
// (spec.md §4.3).
func deriveDeviceKey(masterSeed [32]byte, index uint32) (*crypto.SigningKeyPair, error) {
	info := make([]byte, 0, len(deviceHKDFInfo)+4)
	info = append(info, []byte(deviceHKDFInfo)...)
	info = binary.LittleEndian.AppendUint32(info, index)

	seed, err := crypto.HKDF32(nil, masterSeed[:], info)
	if err != nil {
		return nil, fmt.Errorf("identity: derive device key: %w", err)
	}
	return crypto.SigningKeyPairFromSeed(seed[:])
}

func deviceIDFromPublicKey(pub ed25519.PublicKey) DeviceID {
	sum := sha256.Sum256(pub)
	var id DeviceID
	copy(id[:], sum[:16])
	return id
}

// DeviceRegistry tracks the set of devices authorized under one
// identity. All mutation goes through the primary device's master seed,
// which is the "stable authority" spec.md §4.3 requires to resolve
// concurrent index claims deterministically.
type DeviceRegistry struct {
	mu         sync.Mutex
	masterSeed [32]byte
	signing    *crypto.SigningKeyPair
	records    []*DeviceRecord // in insertion order; each record carries its own Index
}

func newDeviceRegistry(masterSeed [32]byte, signing *crypto.SigningKeyPair) *DeviceRegistry {
	return &DeviceRegistry{masterSeed: masterSeed, signing: signing}
}

// AddDevice claims the next unused index and returns its signed record.
// Concurrent callers serialize on the registry's mutex, so exactly one
// of two racing claims for what looked like the same next-index wins;
// the loser recomputes against the now-updated registry and only fails
// with ErrIndexTaken if the slot it explicitly requested (via
// AddDeviceAt) was filled out from under it.
func (r *DeviceRegistry) AddDevice(name string) (*DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeCountLocked() >= MaxActiveDevices {
		return nil, ErrMaxDevicesReached
	}

	index := r.nextUnusedIndexLocked()
	return r.addAtLocked(index, name)
}

// AddDeviceAt claims a specific index, failing with ErrIndexTaken if an
// active record already occupies it. This is the path a new device
// takes when it already reserved an index via a DeviceLinkToken
// (issued before the record was written) and two devices raced to
// write it first.
func (r *DeviceRegistry) AddDeviceAt(index uint32, name string) (*DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Index == index && rec.Active {
			return nil, ErrIndexTaken
		}
	}
	if r.activeCountLocked() >= MaxActiveDevices {
		return nil, ErrMaxDevicesReached
	}
	return r.addAtLocked(index, name)
}

func (r *DeviceRegistry) addAtLocked(index uint32, name string) (*DeviceRecord, error) {
	deviceKey, err := deriveDeviceKey(r.masterSeed, index)
	if err != nil {
		return nil, err
	}
	id := deviceIDFromPublicKey(deviceKey.PublicKey)

	rec := &DeviceRecord{
		Index:     index,
		Name:      name,
		DeviceID:  id,
		PublicKey: deviceKey.PublicKey,
		Active:    true,
	}
	rec.Signature = r.signing.Sign(canonicalRecordBytes(rec.Index, rec.Name, rec.DeviceID, rec.PublicKey, rec.Active))
	r.records = append(r.records, rec)
	return rec, nil
}

// Revoke flips a device's active flag and re-signs the record.
func (r *DeviceRegistry) Revoke(index uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Index == index {
			rec.Active = false
			rec.Signature = r.signing.Sign(canonicalRecordBytes(rec.Index, rec.Name, rec.DeviceID, rec.PublicKey, rec.Active))
			return nil
		}
	}
	return ErrDeviceNotFound
}

// Records returns a snapshot of all registry entries, active and revoked.
func (r *DeviceRegistry) Records() []*DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DeviceRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *DeviceRegistry) activeCountLocked() int {
	n := 0
	for _, rec := range r.records {
		if rec.Active {
			n++
		}
	}
	return n
}

func (r *DeviceRegistry) nextUnusedIndexLocked() uint32 {
	used := make(map[uint32]bool, len(r.records))
	for _, rec := range r.records {
		used[rec.Index] = true
	}
	var i uint32
	for used[i] {
		i++
	}
	return i
}

// restoreRecords replaces the registry's contents with previously
// signed records recovered from a backup, without re-deriving or
// re-signing anything.
func (r *DeviceRegistry) restoreRecords(records []*DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
}

// VerifyRecord checks a record's signature against the identity's
// public signing key, the check any holder of the registry (not just
// the primary device) can perform.
func VerifyRecord(identityPublicKey ed25519.PublicKey, rec *DeviceRecord) bool {
	return crypto.Verify(identityPublicKey, canonicalRecordBytes(rec.Index, rec.Name, rec.DeviceID, rec.PublicKey, rec.Active), rec.Signature)
}
