// Package sqlite implements storage.Store in a single SQLite table managed by goose migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/medpass/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var _ storage.Store = (*Storage)(nil)

// Storage represents SQLite storage implementation
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite storage instance
// dbPath is the path to the SQLite database file
// Use ":memory:" for in-memory database (useful for testing)
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Один писатель; с одним соединением :memory: остается одной БД
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection. Repeated calls are no-ops.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// runMigrations выполняет миграции из embedded FS
func (s *Storage) runMigrations() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

func checkTable(table string) error {
	if !slices.Contains(storage.Tables, table) {
		return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	return nil
}

// Get returns the value stored under (table, id)
func (s *Storage) Get(ctx context.Context, table, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, storage.ErrClosed
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM kv_rows WHERE tbl = ? AND id = ?`, table, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}

	return data, nil
}

// Put creates or replaces a single row
func (s *Storage) Put(ctx context.Context, row storage.Row) error {
	return s.Batch(ctx, []storage.Op{storage.PutOp(row.Table, row.ID, row.Value)})
}

// Scan returns the rows of table accepted by predicate ordered by id
func (s *Storage) Scan(ctx context.Context, table string, predicate func(storage.Row) bool) ([]storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, storage.ErrClosed
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}

	// BINARY collation keeps the same byte order BoltDB uses
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM kv_rows WHERE tbl = ? ORDER BY id COLLATE BINARY`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer rows.Close()

	var result []storage.Row
	for rows.Next() {
		row := storage.Row{Table: table}
		if err := rows.Scan(&row.ID, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if predicate == nil || predicate(row) {
			result = append(result, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// Batch applies every op in one transaction
func (s *Storage) Batch(ctx context.Context, ops []storage.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op storage.Op) error {
	if err := checkTable(op.Table); err != nil {
		return err
	}

	var err error
	switch op.Kind {
	case storage.OpPut:
		if op.ID == "" {
			return fmt.Errorf("%w: empty id", storage.ErrInvalidOp)
		}
		value := op.Value
		if value == nil {
			value = []byte{}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv_rows (tbl, id, data) VALUES (?, ?, ?)
			ON CONFLICT (tbl, id) DO UPDATE SET data = excluded.data`,
			op.Table, op.ID, value)
	case storage.OpDelete:
		_, err = tx.ExecContext(ctx, `DELETE FROM kv_rows WHERE tbl = ? AND id = ?`, op.Table, op.ID)
	case storage.OpTruncate:
		_, err = tx.ExecContext(ctx, `DELETE FROM kv_rows WHERE tbl = ?`, op.Table)
	default:
		return fmt.Errorf("%w: kind %d", storage.ErrInvalidOp, op.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to apply op: %w", err)
	}

	return nil
}
