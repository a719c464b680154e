package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
	"github.com/iudanet/medpass/internal/storage/boltdb"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// frozenClock всегда возвращает одно и то же время
func frozenClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func entry(action models.Action, recordID string) models.AuditLogEntry {
	return models.AuditLogEntry{Action: action, RecordType: models.RecordTypePrescription, RecordID: recordID}
}

func TestLedger_AppendAssignsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ledger, err := Open(ctx, store, "device-a", discardLogger(), WithClock(frozenClock()))
	require.NoError(t, err)

	require.NoError(t, ledger.Append(ctx, entry(models.ActionCreate, "rec-1")))
	require.NoError(t, ledger.Append(ctx, entry(models.ActionUpdate, "rec-1")))
	require.NoError(t, ledger.Append(ctx, entry(models.ActionDelete, "rec-1")))

	history, err := ledger.History(ctx, models.RecordTypePrescription, "rec-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Новейшие первыми, даже при замороженных часах
	assert.Equal(t, models.ActionDelete, history[0].Action)
	assert.Equal(t, models.ActionCreate, history[2].Action)
	assert.True(t, history[1].Timestamp.After(history[2].Timestamp))
	assert.Equal(t, uint64(3), history[0].Seq)
	assert.Equal(t, "device-a", history[0].DeviceID)
	assert.NotEmpty(t, history[0].ID)
}

func TestLedger_HistoryFiltersByRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger, err := Open(ctx, store, "device-a", discardLogger())
	require.NoError(t, err)

	require.NoError(t, ledger.Append(ctx, entry(models.ActionCreate, "rec-1")))
	require.NoError(t, ledger.Append(ctx, entry(models.ActionCreate, "rec-2")))
	require.NoError(t, ledger.Append(ctx, models.AuditLogEntry{Action: models.ActionCreate, RecordType: models.RecordTypePatient, RecordID: "rec-1"}))

	history, err := ledger.History(ctx, models.RecordTypePrescription, "rec-1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	history, err = ledger.History(ctx, models.RecordTypePrescription, "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedger_Recent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger, err := Open(ctx, store, "device-a", discardLogger())
	require.NoError(t, err)

	for i := range DefaultRecentLimit + 5 {
		require.NoError(t, ledger.Append(ctx, entry(models.ActionCreate, fmt.Sprintf("rec-%d", i))))
	}

	recent, err := ledger.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	assert.Equal(t, fmt.Sprintf("rec-%d", DefaultRecentLimit+4), recent[0].RecordID)

	recent, err = ledger.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestLedger_OpenRestoresClock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := frozenClock()

	ledger, err := Open(ctx, store, "device-a", discardLogger(), WithClock(now))
	require.NoError(t, err)
	require.NoError(t, ledger.Append(ctx, entry(models.ActionCreate, "rec-1")))
	require.NoError(t, ledger.Append(ctx, entry(models.ActionUpdate, "rec-1")))

	// Повторное открытие продолжает последовательность и время
	reopened, err := Open(ctx, store, "device-a", discardLogger(), WithClock(now))
	require.NoError(t, err)
	require.NoError(t, reopened.Append(ctx, entry(models.ActionDelete, "rec-1")))

	history, err := reopened.History(ctx, models.RecordTypePrescription, "rec-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].Seq)
	assert.Equal(t, models.ActionDelete, history[0].Action)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))
}

func TestLedger_PrepareDoesNotWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger, err := Open(ctx, store, "device-a", discardLogger())
	require.NoError(t, err)

	changes := json.RawMessage(`{"dosage":"1g"}`)
	op, prepared, err := ledger.Prepare(models.AuditLogEntry{Action: models.ActionUpdate, RecordID: "rec-1", Changes: changes, DeviceID: "device-b"})
	require.NoError(t, err)
	assert.Equal(t, storage.TableAudit, op.Table)
	assert.Equal(t, "device-b", prepared.DeviceID)

	recent, err := ledger.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	require.NoError(t, store.Batch(ctx, []storage.Op{op}))
	recent, err = ledger.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.JSONEq(t, `{"dosage":"1g"}`, string(recent[0].Changes))
}

func TestLedger_AppendStorageFailure(t *testing.T) {
	store := &storage.StoreMock{
		ScanFunc: func(ctx context.Context, table string, predicate func(storage.Row) bool) ([]storage.Row, error) {
			return nil, nil
		},
		BatchFunc: func(ctx context.Context, ops []storage.Op) error {
			return errors.New("disk full")
		},
	}
	ledger, err := Open(context.Background(), store, "device-a", discardLogger())
	require.NoError(t, err)

	err = ledger.Append(context.Background(), entry(models.ActionCreate, "rec-1"))
	assert.ErrorIs(t, err, models.ErrStorageFailure)
	assert.Len(t, store.BatchCalls(), 1, "failed append is not retried")
}
