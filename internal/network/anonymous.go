package network

import (
	"encoding/binary"

	"github.com/vauchi/core/internal/crypto"
)

// anonymousSenderInfo is the HKDF info string (spec.md §4.8), grounded
// on original_source/vauchi-core/src/network/anonymous.rs.
const anonymousSenderInfo = "Vauchi_AnonymousSender"

// epochSeconds is how long one anonymous-sender epoch lasts. Not
// specified numerically by spec.md; one hour balances unlinkability
// (the sender id changes regularly) against resolution cost (few
// epochs a receiver must try).
const epochSeconds = 3600

// CurrentEpoch returns the epoch index for unixSeconds.
func CurrentEpoch(unixSeconds int64) uint64 {
	return uint64(unixSeconds / epochSeconds)
}

// AnonymousSenderID computes sender_id = HKDF(shared_key, epoch_LE,
// "Vauchi_AnonymousSender")[0..32] for the given epoch.
func AnonymousSenderID(sharedKey [32]byte, epoch uint64) ([32]byte, error) {
	var epochLE [8]byte
	binary.LittleEndian.PutUint64(epochLE[:], epoch)
	return crypto.HKDF32(epochLE[:], sharedKey[:], []byte(anonymousSenderInfo))
}

// ResolveSender tries to match candidate against each contact's shared
// key at the current and previous epoch, tolerating the boundary
// (spec.md §4.8: "resolves sender by trying each contact's shared key
// at the current and previous epoch").
func ResolveSender(candidate [32]byte, nowUnixSeconds int64, sharedKeys map[string][32]byte) (contactID string, ok bool, err error) {
	epoch := CurrentEpoch(nowUnixSeconds)
	for _, e := range []uint64{epoch, epoch - 1} {
		for id, key := range sharedKeys {
			derived, derr := AnonymousSenderID(key, e)
			if derr != nil {
				return "", false, derr
			}
			if derived == candidate {
				return id, true, nil
			}
		}
	}
	return "", false, nil
}
