// Package boltdb implements storage.Store on top of a single BoltDB file.
// Every table is a bucket; rows are keyed by id.
package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/medpass/internal/storage"
)

var _ storage.Store = (*Storage)(nil)

// Storage represents BoltDB storage implementation
type Storage struct {
	db *bbolt.DB
	mu sync.RWMutex
}

// lockTimeout bounds the wait for the file lock held by another process
// (a running medpassd, for example).
const lockTimeout = time.Second

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
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

// initBuckets создает bucket для каждой таблицы если он не существует
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, table := range storage.Tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", table, err)
			}
		}
		return nil
	})
}

// Get returns a copy of the value stored under (table, id)
func (s *Storage) Get(ctx context.Context, table, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrNotFound
		}

		// Значение валидно только внутри транзакции
		value = bytes.Clone(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Put creates or replaces a single row
func (s *Storage) Put(ctx context.Context, row storage.Row) error {
	return s.Batch(ctx, []storage.Op{storage.PutOp(row.Table, row.ID, row.Value)})
}

// Scan returns the rows of table accepted by predicate in key order
func (s *Storage) Scan(ctx context.Context, table string, predicate func(storage.Row) bool) ([]storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []storage.Row
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
		}

		return bucket.ForEach(func(k, v []byte) error {
			row := storage.Row{Table: table, ID: string(k), Value: bytes.Clone(v)}
			if predicate == nil || predicate(row) {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	return rows, nil
}

// Batch applies every op inside one BoltDB write transaction
func (s *Storage) Batch(ctx context.Context, ops []storage.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for i, op := range ops {
			if err := applyOp(tx, op); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

func applyOp(tx *bbolt.Tx, op storage.Op) error {
	name := []byte(op.Table)
	bucket := tx.Bucket(name)
	if bucket == nil {
		return fmt.Errorf("%w: %s", storage.ErrUnknownTable, op.Table)
	}

	switch op.Kind {
	case storage.OpPut:
		if op.ID == "" {
			return fmt.Errorf("%w: empty id", storage.ErrInvalidOp)
		}
		if err := bucket.Put([]byte(op.ID), op.Value); err != nil {
			return fmt.Errorf("failed to save row: %w", err)
		}
	case storage.OpDelete:
		if err := bucket.Delete([]byte(op.ID)); err != nil {
			return fmt.Errorf("failed to delete row: %w", err)
		}
	case storage.OpTruncate:
		// Пересоздаем bucket целиком
		if err := tx.DeleteBucket(name); err != nil {
			return fmt.Errorf("failed to drop bucket: %w", err)
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return fmt.Errorf("failed to recreate bucket: %w", err)
		}
	default:
		return fmt.Errorf("%w: kind %d", storage.ErrInvalidOp, op.Kind)
	}

	return nil
}
