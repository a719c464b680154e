package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
)

func TestDevices_PairGetList(t *testing.T) {
	devices := NewDevices(newTestStore(t), discardLogger())
	ctx := context.Background()

	require.NoError(t, devices.Pair(ctx, &models.BackupDevice{ID: "dev-b", Name: "Clinic tablet", TransportType: models.TransportWebsocket, Relationship: "clinic"}))
	require.NoError(t, devices.Pair(ctx, &models.BackupDevice{ID: "dev-a", Name: "Sister", TransportType: models.TransportBLE, Relationship: "family"}))

	err := devices.Pair(ctx, &models.BackupDevice{ID: "dev-a", TransportType: models.TransportBLE})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	got, err := devices.Get(ctx, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "Clinic tablet", got.Name)
	assert.Zero(t, got.BackupCount)
	assert.Nil(t, got.LastSeen)

	list, err := devices.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dev-a", list[0].ID)

	_, err = devices.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDevices_PairValidation(t *testing.T) {
	devices := NewDevices(newTestStore(t), discardLogger())
	ctx := context.Background()

	assert.ErrorIs(t, devices.Pair(ctx, nil), models.ErrInvalidInput)
	assert.ErrorIs(t, devices.Pair(ctx, &models.BackupDevice{ID: " ", TransportType: models.TransportNFC}), models.ErrInvalidInput)
	assert.ErrorIs(t, devices.Pair(ctx, &models.BackupDevice{ID: "x", TransportType: "carrier-pigeon"}), models.ErrInvalidInput)
}

func TestDevices_Remove(t *testing.T) {
	devices := NewDevices(newTestStore(t), discardLogger())
	ctx := context.Background()

	require.NoError(t, devices.Pair(ctx, &models.BackupDevice{ID: "dev-a", TransportType: models.TransportMock}))
	require.NoError(t, devices.Remove(ctx, "dev-a"))

	_, err := devices.Get(ctx, "dev-a")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, devices.Remove(ctx, "dev-a"), models.ErrNotFound)
}

func TestDevices_BackupOp(t *testing.T) {
	store := newTestStore(t)
	devices := NewDevices(store, discardLogger())
	ctx := context.Background()

	device := &models.BackupDevice{ID: "dev-a", TransportType: models.TransportMock, BackupCount: 2}
	require.NoError(t, devices.Pair(ctx, device))

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("WAT", 3600))
	op, err := devices.BackupOp(device, at)
	require.NoError(t, err)
	assert.Equal(t, storage.TableDevices, op.Table)
	assert.Equal(t, 2, device.BackupCount, "input is not mutated")

	require.NoError(t, store.Batch(ctx, []storage.Op{op}))

	got, err := devices.Get(ctx, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.BackupCount)
	require.NotNil(t, got.LastBackupDate)
	assert.True(t, got.LastBackupDate.Equal(at))
	assert.Equal(t, time.UTC, got.LastSeen.Location())
}
