package storage

import (
	"context"
)

// Table names used by medpass components. Each component owns its table.
const (
	TableIdentity = "identity"
	TableRecords  = "records"
	TableAudit    = "audit"
	TableDevices  = "devices"
)

// Tables lists every table a storage implementation must provide.
var Tables = []string{TableIdentity, TableRecords, TableAudit, TableDevices}

// Row is a single value stored under (Table, ID).
type Row struct {
	Table string
	ID    string
	Value []byte
}

// OpKind is the kind of a batched write.
type OpKind uint8

const (
	// OpPut creates or replaces a row
	OpPut OpKind = iota + 1
	// OpDelete removes a row; used only by the irreversible factory reset
	OpDelete
	// OpTruncate removes every row of a table; used only by the irreversible factory reset
	OpTruncate
)

// Op is one write inside an atomic Batch.
type Op struct {
	Table string
	ID    string
	Value []byte
	Kind  OpKind
}

// PutOp builds a put operation.
func PutOp(table, id string, value []byte) Op {
	return Op{Kind: OpPut, Table: table, ID: id, Value: value}
}

//go:generate moq -out store_mock.go . Store

// Store defines the key-value/row-store contract required by the medpass core.
// Implementations serialize access internally; a single Store may be shared
// by every component of one process.
type Store interface {
	// Get returns the value stored under (table, id).
	// Returns ErrNotFound if the row doesn't exist
	Get(ctx context.Context, table, id string) ([]byte, error)

	// Put creates or replaces a single row
	Put(ctx context.Context, row Row) error

	// Scan returns every row of the table accepted by predicate, ordered by id.
	// A nil predicate accepts every row
	Scan(ctx context.Context, table string, predicate func(Row) bool) ([]Row, error)

	// Batch applies all operations atomically: either every op is persisted or none is
	Batch(ctx context.Context, ops []Op) error

	// Close releases the underlying storage engine
	Close() error
}
