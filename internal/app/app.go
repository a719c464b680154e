// Package app wires the storage, identity, record, audit and sync
// components of one medpass installation and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iudanet/medpass/internal/audit"
	"github.com/iudanet/medpass/internal/config"
	"github.com/iudanet/medpass/internal/identity"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/record"
	"github.com/iudanet/medpass/internal/storage"
	"github.com/iudanet/medpass/internal/storage/boltdb"
	"github.com/iudanet/medpass/internal/storage/sqlite"
	"github.com/iudanet/medpass/internal/sync"
)

// App is one opened installation. Records, Ledger and Sync are nil until
// a patient identity exists.
type App struct {
	Store    storage.Store
	Identity *identity.Registry
	Devices  *identity.Devices
	Locks    *sync.LockManager

	Patient *models.PatientIdentity
	Ledger  *audit.Ledger
	Records *record.Store
	Sync    *sync.Coordinator

	logger *slog.Logger
	cfg    config.Config
}

// OpenStore opens the store selected by driver at path
func OpenStore(ctx context.Context, driver, path string) (storage.Store, error) {
	switch driver {
	case config.DriverBolt, "":
		return boltdb.New(ctx, path)
	case config.DriverSQLite:
		return sqlite.New(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Open opens the configured store and loads the identity if there is one
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a, err := New(ctx, store, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// New wires an App over an already opened store
func New(ctx context.Context, store storage.Store, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Store:    store,
		Identity: identity.NewRegistry(store, logger),
		Devices:  identity.NewDevices(store, logger),
		Locks:    sync.NewLockManager(),
		logger:   logger,
		cfg:      *cfg,
	}
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// RequireIdentity returns models.ErrNoIdentity before onboarding
func (a *App) RequireIdentity() error {
	if a.Patient == nil {
		return models.ErrNoIdentity
	}
	return nil
}

// Onboard creates the patient identity and enables the record components
func (a *App) Onboard(ctx context.Context, p identity.CreateParams) (*models.PatientIdentity, error) {
	if _, err := a.Identity.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	return a.Patient, nil
}

// Enroll installs the identity of another device of the same patient
func (a *App) Enroll(ctx context.Context, from *models.PatientIdentity, pin string) (*models.PatientIdentity, error) {
	if _, err := a.Identity.Enroll(ctx, from, pin); err != nil {
		return nil, err
	}
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	return a.Patient, nil
}

// Reset erases every local table and returns the app to the
// pre-onboarding state
func (a *App) Reset(ctx context.Context) error {
	if err := a.Identity.FactoryReset(ctx); err != nil {
		return err
	}
	a.Patient, a.Ledger, a.Records, a.Sync = nil, nil, nil, nil
	return nil
}

// Close closes the store
func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) load(ctx context.Context) error {
	patient, err := a.Identity.Current(ctx)
	if err != nil {
		return err
	}
	if patient == nil {
		return nil
	}

	ledger, err := audit.Open(ctx, a.Store, patient.DeviceID, a.logger)
	if err != nil {
		return err
	}

	a.Patient = patient
	a.Ledger = ledger
	a.Records = record.New(a.Store, ledger, patient.DeviceID, patient.ID, a.logger)
	a.Sync = sync.NewCoordinator(a.Records, ledger, a.Devices, a.Locks, SyncConfig(a.cfg.Sync), a.logger)
	return nil
}

// SyncConfig converts the sync section of the configuration
func SyncConfig(c config.SyncConfig) sync.Config {
	return sync.Config{
		NegotiateTimeout: c.NegotiateTimeout,
		TransferTimeout:  c.TransferTimeout,
		LockWait:         c.LockWait,
	}
}
