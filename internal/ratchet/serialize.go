package ratchet

import (
	"encoding/binary"
	"fmt"
)

// skippedRecord is the serialisable form of one skippedStore entry.
type skippedRecord struct {
	DH       [32]byte
	N        uint32
	Key      [32]byte
	Consumed bool
}

// Marshal renders the session state into a deterministic byte string
// suitable for encryption and storage by package storage (spec.md §4.2:
// "serialisation is deterministic"). Field order is fixed; no map
// iteration is involved.
func (s *Session) Marshal() []byte {
	st := s.State
	var buf []byte

	buf = append(buf, st.RootKey[:]...)
	buf = append(buf, st.ChainKeySend[:]...)
	buf = append(buf, st.ChainKeyRecv[:]...)
	buf = append(buf, boolByte(st.HaveCKSend))
	buf = append(buf, boolByte(st.HaveCKRecv))
	buf = append(buf, st.OwnDH.PrivateKey[:]...)
	buf = append(buf, st.OwnDH.PublicKey[:]...)
	buf = append(buf, st.RemoteDH[:]...)
	buf = append(buf, boolByte(st.HaveRemoteDH))
	buf = appendU32(buf, st.Ns)
	buf = appendU32(buf, st.Nr)
	buf = appendU32(buf, st.PN)
	buf = appendU32(buf, st.Generation)

	records := st.skipped.records()
	buf = appendU32(buf, uint32(len(records)))
	for _, r := range records {
		buf = append(buf, r.DH[:]...)
		buf = appendU32(buf, r.N)
		buf = append(buf, r.Key[:]...)
		buf = append(buf, boolByte(r.Consumed))
	}
	return buf
}

// Unmarshal parses a buffer produced by Marshal, failing with
// ErrDeserialization on any structural mismatch rather than guessing.
func Unmarshal(buf []byte) (*Session, error) {
	const fixedLen = 32 + 32 + 32 + 1 + 1 + 32 + 32 + 32 + 1 + 4 + 4 + 4 + 4 + 4
	if len(buf) < fixedLen {
		return nil, fmt.Errorf("%w: truncated fixed section", ErrDeserialization)
	}

	st := &State{}
	r := &reader{buf: buf}

	r.read32(&st.RootKey)
	r.read32(&st.ChainKeySend)
	r.read32(&st.ChainKeyRecv)
	st.HaveCKSend = r.readBool()
	st.HaveCKRecv = r.readBool()
	r.read32(&st.OwnDH.PrivateKey)
	r.read32(&st.OwnDH.PublicKey)
	r.read32(&st.RemoteDH)
	st.HaveRemoteDH = r.readBool()
	st.Ns = r.readU32()
	st.Nr = r.readU32()
	st.PN = r.readU32()
	st.Generation = r.readU32()

	count := r.readU32()
	if r.err != nil {
		return nil, r.err
	}
	if count > MaxSkippedKeys {
		return nil, fmt.Errorf("%w: skipped-key count %d exceeds bound", ErrDeserialization, count)
	}

	records := make([]skippedRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec skippedRecord
		r.read32(&rec.DH)
		rec.N = r.readU32()
		r.read32(&rec.Key)
		rec.Consumed = r.readBool()
		if r.err != nil {
			return nil, r.err
		}
		records = append(records, rec)
	}
	if !r.atEnd() {
		return nil, fmt.Errorf("%w: trailing bytes", ErrDeserialization)
	}

	st.skipped = storeFromRecords(records)
	return &Session{State: st}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// reader is a tiny deterministic-layout cursor; it never panics, it
// records the first error and keeps every subsequent read a no-op.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w: unexpected end of buffer", ErrDeserialization)
	}
}

func (r *reader) read32(dst *[32]byte) {
	if r.err != nil {
		return
	}
	if r.pos+32 > len(r.buf) {
		r.fail()
		return
	}
	copy(dst[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
}

func (r *reader) readBool() bool {
	if r.err != nil {
		return false
	}
	if r.pos+1 > len(r.buf) {
		r.fail()
		return false
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v
}

func (r *reader) readU32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) atEnd() bool {
	return r.err == nil && r.pos == len(r.buf)
}
