package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/storage"
)

func setupTestDB(t *testing.T) *Storage {
	t.Helper()

	store, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestNew_RunsMigrations(t *testing.T) {
	store := setupTestDB(t)

	var count int
	err := store.db.QueryRow(`SELECT COUNT(*) FROM kv_rows`).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "medpass.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.Row{Table: storage.TableIdentity, ID: "current", Value: []byte("id")}))
	require.NoError(t, store.Close())

	// Повторное открытие не должно падать на миграциях
	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, storage.TableIdentity, "current")
	require.NoError(t, err)
	assert.Equal(t, []byte("id"), got)
}

func TestStorage_PutGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storage.Row{Table: storage.TableRecords, ID: "rec-1", Value: []byte("v1")}))
	require.NoError(t, store.Put(ctx, storage.Row{Table: storage.TableRecords, ID: "rec-1", Value: []byte("v2")}))

	got, err := store.Get(ctx, storage.TableRecords, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// Одинаковый id в разных таблицах не пересекается
	_, err = store.Get(ctx, storage.TableAudit, "rec-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Get(ctx, "nope", "rec-1")
	assert.ErrorIs(t, err, storage.ErrUnknownTable)
}

func TestStorage_Scan(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, store.Put(ctx, storage.Row{Table: storage.TableDevices, ID: id, Value: []byte(id)}))
	}

	rows, err := store.Scan(ctx, storage.TableDevices, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})

	rows, err = store.Scan(ctx, storage.TableDevices, func(r storage.Row) bool { return r.ID == "c" })
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte("c"), rows[0].Value)
}

func TestStorage_BatchRollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.Batch(ctx, []storage.Op{
		storage.PutOp(storage.TableRecords, "rec-1", []byte("r")),
		{Kind: storage.OpPut, Table: storage.TableAudit, ID: ""},
	})
	require.ErrorIs(t, err, storage.ErrInvalidOp)

	_, err = store.Get(ctx, storage.TableRecords, "rec-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_BatchDeleteAndTruncate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Batch(ctx, []storage.Op{
		storage.PutOp(storage.TableRecords, "rec-1", []byte("1")),
		storage.PutOp(storage.TableRecords, "rec-2", []byte("2")),
		storage.PutOp(storage.TableAudit, "a-1", []byte("a")),
	}))

	require.NoError(t, store.Batch(ctx, []storage.Op{
		{Kind: storage.OpDelete, Table: storage.TableAudit, ID: "a-1"},
		{Kind: storage.OpTruncate, Table: storage.TableRecords},
	}))

	rows, err := store.Scan(ctx, storage.TableRecords, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = store.Scan(ctx, storage.TableAudit, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStorage_Closed(t *testing.T) {
	store, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Scan(context.Background(), storage.TableRecords, nil)
	assert.ErrorIs(t, err, storage.ErrClosed)
}
