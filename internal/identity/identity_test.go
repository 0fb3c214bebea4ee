package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateIdentity(t *testing.T) {
	id, err := Create("Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", id.DisplayName)
	require.Len(t, id.PublicID(), 64) // hex SHA-256

	records := id.Devices.Records()
	require.Len(t, records, 1)
	require.Equal(t, uint32(0), records[0].Index)
	require.Equal(t, "Primary Device", records[0].Name)
	require.True(t, records[0].Active)
	require.True(t, VerifyRecord(id.Signing.PublicKey, records[0]))
}

func TestBackupExportImportRoundTrip(t *testing.T) {
	id, err := Create("Bob")
	require.NoError(t, err)

	const password = "correct horse battery staple 42!"
	backup, err := ExportBackup(id, password)
	require.NoError(t, err)

	restored, err := ImportBackup(backup, password)
	require.NoError(t, err)

	require.Equal(t, id.PublicID(), restored.PublicID())
	require.Equal(t, id.DisplayName, restored.DisplayName)
	require.Equal(t, id.Devices.Records(), restored.Devices.Records())
}

func TestBackupImportRejectsWrongPassword(t *testing.T) {
	id, err := Create("Carol")
	require.NoError(t, err)

	backup, err := ExportBackup(id, "correct horse battery staple 42!")
	require.NoError(t, err)

	_, err = ImportBackup(backup, "totally different passphrase 99!")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestExportRejectsWeakPassword(t *testing.T) {
	id, err := Create("Dave")
	require.NoError(t, err)

	_, err = ExportBackup(id, "short")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestValidatePasswordScoring(t *testing.T) {
	_, err := ValidatePassword("password")
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = ValidatePassword("abcdefgh")
	require.ErrorIs(t, err, ErrWeakPassword)

	score, err := ValidatePassword("Tr0ub4dor&3-zebra-canyon")
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(score), MinRequiredScore)
}

func TestDeviceRegistryMaxActive(t *testing.T) {
	id, err := Create("Erin")
	require.NoError(t, err)

	for i := 0; i < MaxActiveDevices-1; i++ {
		_, err := id.Devices.AddDevice("extra device")
		require.NoError(t, err)
	}

	_, err = id.Devices.AddDevice("one too many")
	require.ErrorIs(t, err, ErrMaxDevicesReached)
}

func TestDeviceRegistryConcurrentAddSameIndexRaceYieldsOneIndexTaken(t *testing.T) {
	id, err := Create("Frank")
	require.NoError(t, err)

	const index = uint32(5)
	_, err = id.Devices.AddDeviceAt(index, "device A")
	require.NoError(t, err)

	_, err = id.Devices.AddDeviceAt(index, "device B")
	require.ErrorIs(t, err, ErrIndexTaken)
}

func TestDeviceRegistryNoDuplicateActiveIndices(t *testing.T) {
	id, err := Create("Grace")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := id.Devices.AddDevice("device")
		require.NoError(t, err)
	}

	seen := map[uint32]bool{}
	for _, rec := range id.Devices.Records() {
		if !rec.Active {
			continue
		}
		require.False(t, seen[rec.Index], "duplicate active index %d", rec.Index)
		seen[rec.Index] = true
	}
}

func TestRevokeDevice(t *testing.T) {
	id, err := Create("Heidi")
	require.NoError(t, err)

	rec, err := id.Devices.AddDevice("laptop")
	require.NoError(t, err)

	require.NoError(t, id.Devices.Revoke(rec.Index))

	for _, r := range id.Devices.Records() {
		if r.Index == rec.Index {
			require.False(t, r.Active)
			require.True(t, VerifyRecord(id.Signing.PublicKey, r))
		}
	}
}

func TestDeviceLinkTokenRoundTrip(t *testing.T) {
	id, err := Create("Ivan")
	require.NoError(t, err)

	rec, err := id.Devices.AddDevice("tablet")
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := IssueDeviceLinkToken(id, rec, now)
	require.NoError(t, err)

	require.NoError(t, VerifyDeviceLinkToken(id.Signing.PublicKey, rec, token))
}

func TestDeviceLinkTokenExpires(t *testing.T) {
	id, err := Create("Judy")
	require.NoError(t, err)

	rec, err := id.Devices.AddDevice("watch")
	require.NoError(t, err)

	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := IssueDeviceLinkToken(id, rec, issuedAt.Add(-2*DeviceLinkTokenTTL))
	require.NoError(t, err)

	err = VerifyDeviceLinkToken(id.Signing.PublicKey, rec, token)
	require.ErrorIs(t, err, ErrDeviceLinkExpired)
}

func TestDeviceLinkTokenRejectsMismatchedRecord(t *testing.T) {
	id, err := Create("Mallory")
	require.NoError(t, err)

	rec, err := id.Devices.AddDevice("phone")
	require.NoError(t, err)
	other, err := id.Devices.AddDevice("another phone")
	require.NoError(t, err)

	token, err := IssueDeviceLinkToken(id, rec, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	err = VerifyDeviceLinkToken(id.Signing.PublicKey, other, token)
	require.ErrorIs(t, err, ErrDeviceLinkInvalid)
}
