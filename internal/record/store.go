// Package record is the versioned record store. Every mutation bumps this
// device's version vector entry and is committed atomically with its audit
// entry.
package record

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/medpass/internal/audit"
	"github.com/iudanet/medpass/internal/crdt"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
	"github.com/iudanet/medpass/internal/validation"
)

// Store manages records of one patient on one device
type Store struct {
	store     storage.Store
	ledger    *audit.Ledger
	logger    *slog.Logger
	now       func() time.Time
	deviceID  string
	patientID string
	mu        sync.Mutex // один писатель на устройство
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the wall clock (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a record store writing as deviceID on behalf of patientID
func New(store storage.Store, ledger *audit.Ledger, deviceID, patientID string, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		store:     store,
		ledger:    ledger,
		logger:    logger,
		now:       time.Now,
		deviceID:  deviceID,
		patientID: patientID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeviceID returns the device this store writes as
func (s *Store) DeviceID() string { return s.deviceID }

// PatientID returns the owner of every record in this store
func (s *Store) PatientID() string { return s.patientID }

// Create stores a new active record with vector {device: 1}
func (s *Store) Create(ctx context.Context, payload models.Payload) (*models.Record, error) {
	kind, err := payload.Type()
	if err != nil {
		return nil, err
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	changes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec := &models.Record{
		ID:             uuid.New().String(),
		PatientID:      s.patientID,
		Type:           kind,
		Payload:        payload.Clone(),
		Status:         models.StatusActive,
		VersionVector:  crdt.NewVersionVector(s.deviceID),
		OriginDeviceID: s.deviceID,
		CreatedAt:      now,
		LastModified:   now,
	}

	if err := s.commit(ctx, rec, models.ActionCreate, changes); err != nil {
		return nil, err
	}

	s.logger.Debug("Record created", "record_id", rec.ID, "type", rec.Type)
	return rec, nil
}

// Update applies the present fields of patch to a live record
func (s *Store) Update(ctx context.Context, id string, patch models.PayloadPatch) (*models.Record, error) {
	if err := validation.ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidRecord, err)
	}

	changes, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Prescription != nil {
		if rec.Payload.Prescription == nil {
			return nil, fmt.Errorf("%w: record %s is not a prescription", models.ErrInvalidRecord, id)
		}
		applied := patch.Prescription.Apply(*rec.Payload.Prescription)
		rec.Payload.Prescription = &applied
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}

	s.touch(rec)

	if err := s.commit(ctx, rec, models.ActionUpdate, changes); err != nil {
		return nil, err
	}

	return rec, nil
}

// SetStatus changes the clinical status of a live record
func (s *Store) SetStatus(ctx context.Context, id string, status models.Status) (*models.Record, error) {
	return s.Update(ctx, id, models.PayloadPatch{Status: &status})
}

// SoftDelete turns a live record into a tombstone
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	rec.IsDeleted = true
	s.touch(rec)

	if err := s.commit(ctx, rec, models.ActionDelete, nil); err != nil {
		return err
	}

	s.logger.Debug("Record deleted", "record_id", id)
	return nil
}

// Restore undeletes a tombstone with a causally later edit
func (s *Store) Restore(ctx context.Context, id string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.IsDeleted {
		return nil, fmt.Errorf("%w: record %s is not deleted", models.ErrAlreadyExists, id)
	}

	rec.IsDeleted = false
	s.touch(rec)

	if err := s.commit(ctx, rec, models.ActionRestore, nil); err != nil {
		return nil, err
	}

	return rec, nil
}

// Get returns a live record. Tombstones are reported as models.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

// Lookup returns a record including tombstones
func (s *Store) Lookup(ctx context.Context, id string) (*models.Record, error) {
	data, err := s.store.Get(ctx, storage.TableRecords, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return models.UnmarshalRecord(data)
}

// List yields the patient's records newest first (id as the tiebreak).
// Every range over the sequence scans storage again.
func (s *Store) List(ctx context.Context, patientID string, includeDeleted bool) iter.Seq2[*models.Record, error] {
	return func(yield func(*models.Record, error) bool) {
		records, err := s.scan(ctx, func(r *models.Record) bool {
			return r.PatientID == patientID && (includeDeleted || !r.IsDeleted)
		})
		if err != nil {
			yield(nil, err)
			return
		}

		slices.SortFunc(records, func(a, b *models.Record) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})

		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Vectors returns the version vector of every record, tombstones included
func (s *Store) Vectors(ctx context.Context) (map[string]crdt.VersionVector, error) {
	records, err := s.scan(ctx, nil)
	if err != nil {
		return nil, err
	}

	vectors := make(map[string]crdt.VersionVector, len(records))
	for _, rec := range records {
		vectors[rec.ID] = rec.VersionVector
	}
	return vectors, nil
}

// SaveOp returns the storage op persisting rec verbatim. Sync uses it to
// commit merged records in its own batch.
func (s *Store) SaveOp(rec *models.Record) (storage.Op, error) {
	if err := rec.Validate(); err != nil {
		return storage.Op{}, err
	}

	data, err := rec.Marshal()
	if err != nil {
		return storage.Op{}, err
	}
	return storage.PutOp(storage.TableRecords, rec.ID, data), nil
}

// CommitSync writes the ops of a sync session in one batch, provided no
// local edit touched the merged records since they were read. expected maps
// record id to the vector seen at merge time, nil for ids absent then.
// A changed record yields models.ErrSessionConflict and nothing is written.
func (s *Store) CommitSync(ctx context.Context, expected map[string]crdt.VersionVector, ops []storage.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, vv := range expected {
		current, err := s.Lookup(ctx, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			if vv != nil {
				return fmt.Errorf("%w: record %s vanished during sync", models.ErrSessionConflict, id)
			}
			continue
		case err != nil:
			return err
		}
		if vv == nil || !current.VersionVector.Equal(vv) {
			return fmt.Errorf("%w: record %s changed during sync", models.ErrSessionConflict, id)
		}
	}

	if len(ops) == 0 {
		return nil
	}

	if err := s.store.Batch(ctx, ops); err != nil {
		s.logger.Error("Failed to commit sync batch", "ops", len(ops), "error", err)
		return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return nil
}

// touch records a local edit: exactly one increment of this device's entry
func (s *Store) touch(rec *models.Record) {
	if rec.VersionVector == nil {
		rec.VersionVector = crdt.VersionVector{}
	}
	rec.VersionVector.Increment(s.deviceID)
	rec.LastModified = s.now().UTC()
}

func (s *Store) commit(ctx context.Context, rec *models.Record, action models.Action, changes json.RawMessage) error {
	recordOp, err := s.SaveOp(rec)
	if err != nil {
		return err
	}

	auditOp, _, err := s.ledger.Prepare(models.AuditLogEntry{
		DeviceID:   s.deviceID,
		Action:     action,
		RecordType: rec.Type,
		RecordID:   rec.ID,
		Changes:    changes,
	})
	if err != nil {
		return err
	}

	if err := s.store.Batch(ctx, []storage.Op{recordOp, auditOp}); err != nil {
		s.logger.Error("Failed to commit record", "record_id", rec.ID, "action", action, "error", err)
		return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) scan(ctx context.Context, keep func(*models.Record) bool) ([]*models.Record, error) {
	rows, err := s.store.Scan(ctx, storage.TableRecords, nil)
	if err != nil {
		return nil, storageErr(err)
	}

	records := make([]*models.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := models.UnmarshalRecord(row.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupted record %s: %w", models.ErrStorageFailure, row.ID, err)
		}
		if keep == nil || keep(rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func validatePayload(p models.Payload) error {
	if p.Prescription != nil {
		if err := validation.ValidatePrescription(p.Prescription); err != nil {
			return fmt.Errorf("%w: %w", models.ErrInvalidRecord, err)
		}
	}
	return nil
}

func storageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
}
