package identity

import "errors"

// Identity-level errors (spec.md §7, "Validation"/crypto-adjacent family).
var (
	// ErrInvalidPassword is returned by ImportBackup when the backup
	// fails to authenticate under the supplied password.
	ErrInvalidPassword = errors.New("identity: invalid backup password")
	// ErrWeakPassword is returned when a candidate password fails the
	// minimum-length or entropy-score requirement.
	ErrWeakPassword = errors.New("identity: password too weak")
	// ErrCorruptBackup is returned when a backup's structure cannot be
	// parsed at all (truncated salt/body, or decrypted state that does not
	// parse). Data without the current magic is read as a legacy backup.
	ErrCorruptBackup = errors.New("identity: corrupt backup")
)

// Device registry errors (spec.md §7, "Device" family).
var (
	// ErrIndexTaken is returned when two devices race to claim the same
	// registry index; exactly one caller gets this error.
	ErrIndexTaken = errors.New("identity: device index already taken")
	// ErrMaxDevicesReached is returned when a 17th active device would
	// be added to a registry already holding 16.
	ErrMaxDevicesReached = errors.New("identity: maximum active devices reached")
	// ErrDeviceNotFound is returned by Revoke for an unknown index.
	ErrDeviceNotFound = errors.New("identity: device not found")
)
