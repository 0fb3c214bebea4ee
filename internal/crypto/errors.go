package crypto

import "errors"

// Error kinds for the crypto primitives component. Callers should use
// errors.Is against these sentinels rather than matching on message text.
var (
	ErrEncryptFailed  = errors.New("crypto: encryption failed")
	ErrDecryptFailed  = errors.New("crypto: decryption failed")
	ErrInvalidLength  = errors.New("crypto: invalid key or buffer length")
	ErrKdfFailed      = errors.New("crypto: key derivation failed")
	ErrUnknownAlgoTag = errors.New("crypto: unrecognized AEAD algorithm tag")
)
