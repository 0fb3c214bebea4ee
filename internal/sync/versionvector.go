package sync

// VectorRelation is the result of comparing two version vectors.
type VectorRelation int

const (
	Equal VectorRelation = iota
	Dominates
	DominatedBy
	Concurrent
)

// VersionVector maps device-id to a monotonic per-device counter
// (spec.md §4.7). A sending device increments its own component
// before transmitting an update.
type VersionVector map[string]uint64

// Clone returns an independent copy.
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Increment bumps the sending device's own component and returns the
// vector for chaining.
func (v VersionVector) Increment(deviceID string) VersionVector {
	v[deviceID]++
	return v
}

// Compare classifies the relationship between a and b.
func Compare(a, b VersionVector) VectorRelation {
	aDominatesSome, bDominatesSome := false, false

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		av, bv := a[k], b[k]
		if av > bv {
			aDominatesSome = true
		} else if bv > av {
			bDominatesSome = true
		}
	}

	switch {
	case !aDominatesSome && !bDominatesSome:
		return Equal
	case aDominatesSome && !bDominatesSome:
		return Dominates
	case !aDominatesSome && bDominatesSome:
		return DominatedBy
	default:
		return Concurrent
	}
}

// FieldVersion is the per-field counter embedded in a change, used to
// resolve concurrent updates to the same field with last-writer-wins
// semantics (spec.md §4.7).
type FieldVersion struct {
	DeviceID string
	Counter  uint64
}

// After reports whether fv happened strictly after other under
// field-level LWW: higher counter wins; a tie breaks by lexicographic
// device-id (spec.md §4.7: "ties break by lexicographic device-id").
func (fv FieldVersion) After(other FieldVersion) bool {
	if fv.Counter != other.Counter {
		return fv.Counter > other.Counter
	}
	return fv.DeviceID > other.DeviceID
}

// MergeFieldChange resolves a concurrent write to the same field
// observed from two devices, returning whichever FieldChange wins
// under field-level LWW plus whether the result differs from local
// (an IncomingUpdate event should be emitted by the caller when it
// does, per spec.md §4.7).
func MergeFieldChange(localVersion, remoteVersion FieldVersion, local, remote FieldChange) (winner FieldChange, changed bool) {
	if remoteVersion.After(localVersion) {
		return remote, true
	}
	return local, false
}
