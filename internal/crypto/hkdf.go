package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFExtract performs the HKDF-SHA256 extract step, producing a
// pseudorandom key from input key material and an optional salt.
func HKDFExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpand performs the HKDF-SHA256 expand step, producing outputLength
// bytes from a pseudorandom key and context info.
func HKDFExpand(prk, info []byte, outputLength int) ([]byte, error) {
	reader := hkdf.Expand(sha256.New, prk, info)
	out := make([]byte, outputLength)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	return out, nil
}

// HKDF performs the combined extract-then-expand over ikm with salt and
// info, producing outputLength bytes in one call.
func HKDF(salt, ikm, info []byte, outputLength int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outputLength)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	return out, nil
}

// HKDF32 is a convenience wrapper returning exactly 32 bytes.
func HKDF32(salt, ikm, info []byte) ([32]byte, error) {
	var out [32]byte
	b, err := HKDF(salt, ikm, info, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// HKDF64 is a convenience wrapper returning exactly 64 bytes, used when a
// single derivation must yield two 32-byte keys (e.g. root key + chain
// key in the Double Ratchet).
func HKDF64(salt, ikm, info []byte) ([64]byte, error) {
	var out [64]byte
	b, err := HKDF(salt, ikm, info, 64)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
