// Package audit implements the append-only audit ledger.
//
// Entries are keyed by their Lamport sequence so storage order equals append
// order; timestamps are forced to be strictly increasing on one device.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/medpass/internal/crdt"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
)

// DefaultRecentLimit is used by Recent when no positive limit is given
const DefaultRecentLimit = 100

// Ledger appends and reads audit entries
type Ledger struct {
	last     time.Time
	store    storage.Store
	clock    *crdt.LamportClock
	logger   *slog.Logger
	now      func() time.Time
	deviceID string
	mu       sync.Mutex
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the wall clock (tests)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open restores the ledger state from store: the Lamport clock continues
// after the highest stored sequence and timestamps after the newest entry.
func Open(ctx context.Context, store storage.Store, deviceID string, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		clock:    crdt.NewLamportClock(deviceID),
		logger:   logger,
		now:      time.Now,
		deviceID: deviceID,
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		l.clock.Observe(e.Seq)
		if e.Timestamp.After(l.last) {
			l.last = e.Timestamp
		}
	}

	logger.Debug("Audit ledger opened", "entries", len(entries), "seq", l.clock.Current())

	return l, nil
}

// Prepare stamps entry with id, sequence, timestamp and device and returns
// the storage op that persists it. The caller commits the op in the same
// batch as the mutation it describes.
func (l *Ledger) Prepare(entry models.AuditLogEntry) (storage.Op, models.AuditLogEntry, error) {
	l.mu.Lock()
	ts := l.now().UTC()
	if !ts.After(l.last) {
		ts = l.last.Add(time.Nanosecond)
	}
	l.last = ts
	entry.Seq = l.clock.Tick()
	l.mu.Unlock()

	entry.Timestamp = ts
	entry.ID = uuid.New().String()
	if entry.DeviceID == "" {
		entry.DeviceID = l.deviceID
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return storage.Op{}, models.AuditLogEntry{}, fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return storage.PutOp(storage.TableAudit, key(entry), data), entry, nil
}

// Append persists a single entry on its own. Storage failures are returned
// as models.ErrStorageFailure and never retried.
func (l *Ledger) Append(ctx context.Context, entry models.AuditLogEntry) error {
	op, prepared, err := l.Prepare(entry)
	if err != nil {
		return err
	}

	if err := l.store.Batch(ctx, []storage.Op{op}); err != nil {
		l.logger.Error("Failed to append audit entry", "action", prepared.Action, "record_id", prepared.RecordID, "error", err)
		return fmt.Errorf("%w: failed to append audit entry: %w", models.ErrStorageFailure, err)
	}

	return nil
}

// History returns the entries of one record, newest first
func (l *Ledger) History(ctx context.Context, recordType models.RecordType, recordID string) ([]models.AuditLogEntry, error) {
	entries, err := l.all(ctx)
	if err != nil {
		return nil, err
	}

	history := slices.DeleteFunc(entries, func(e models.AuditLogEntry) bool {
		return e.RecordType != recordType || e.RecordID != recordID
	})
	sortNewestFirst(history)

	return history, nil
}

// Recent returns the newest limit entries across all records.
// limit <= 0 selects DefaultRecentLimit.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	entries, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *Ledger) all(ctx context.Context) ([]models.AuditLogEntry, error) {
	rows, err := l.store.Scan(ctx, storage.TableAudit, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audit ledger: %w", models.ErrStorageFailure, err)
	}

	entries := make([]models.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		var e models.AuditLogEntry
		if err := json.Unmarshal(row.Value, &e); err != nil {
			return nil, fmt.Errorf("%w: corrupted audit entry %s: %w", models.ErrStorageFailure, row.ID, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func sortNewestFirst(entries []models.AuditLogEntry) {
	slices.SortStableFunc(entries, func(a, b models.AuditLogEntry) int {
		switch {
		case b.Before(&a):
			return -1
		case a.Before(&b):
			return 1
		}
		return 0
	})
}

// key keeps lexical storage order equal to sequence order
func key(e models.AuditLogEntry) string {
	return fmt.Sprintf("%020d-%s", e.Seq, e.ID)
}
