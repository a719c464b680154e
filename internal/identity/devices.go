package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/storage"
)

// Devices is the registry of paired backup devices
type Devices struct {
	store  storage.Store
	logger *slog.Logger
}

// NewDevices создает реестр устройств
func NewDevices(store storage.Store, logger *slog.Logger) *Devices {
	return &Devices{store: store, logger: logger}
}

// Pair registers a new peer. Pairing cryptography happens outside; only
// the resulting public key is recorded.
func (d *Devices) Pair(ctx context.Context, device *models.BackupDevice) error {
	if device == nil || strings.TrimSpace(device.ID) == "" {
		return fmt.Errorf("%w: device id is required", models.ErrInvalidInput)
	}
	if !device.TransportType.Valid() {
		return fmt.Errorf("%w: unknown transport %q", models.ErrInvalidInput, device.TransportType)
	}

	_, err := d.Get(ctx, device.ID)
	switch {
	case err == nil:
		return models.ErrAlreadyExists
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}
	if err := d.store.Put(ctx, storage.Row{Table: storage.TableDevices, ID: device.ID, Value: data}); err != nil {
		return fmt.Errorf("%w: failed to save device: %w", models.ErrStorageFailure, err)
	}

	d.logger.Info("Device paired", "device_id", device.ID, "transport", device.TransportType)
	return nil
}

// Get returns a paired device or models.ErrNotFound
func (d *Devices) Get(ctx context.Context, id string) (*models.BackupDevice, error) {
	data, err := d.store.Get(ctx, storage.TableDevices, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read device: %w", models.ErrStorageFailure, err)
	}

	return decodeDevice(data)
}

// List returns every paired device ordered by id
func (d *Devices) List(ctx context.Context) ([]*models.BackupDevice, error) {
	rows, err := d.store.Scan(ctx, storage.TableDevices, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list devices: %w", models.ErrStorageFailure, err)
	}

	devices := make([]*models.BackupDevice, 0, len(rows))
	for _, row := range rows {
		device, err := decodeDevice(row.Value)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// Remove unpairs a device. Only an explicit user action calls this.
func (d *Devices) Remove(ctx context.Context, id string) error {
	if _, err := d.Get(ctx, id); err != nil {
		return err
	}

	op := storage.Op{Kind: storage.OpDelete, Table: storage.TableDevices, ID: id}
	if err := d.store.Batch(ctx, []storage.Op{op}); err != nil {
		return fmt.Errorf("%w: failed to remove device: %w", models.ErrStorageFailure, err)
	}

	d.logger.Info("Device removed", "device_id", id)
	return nil
}

// BackupOp returns the storage op recording a completed backup with device
// at time at. The caller commits it together with the merged records.
func (d *Devices) BackupOp(device *models.BackupDevice, at time.Time) (storage.Op, error) {
	bumped := *device
	at = at.UTC()
	bumped.LastSeen = &at
	bumped.LastBackupDate = &at
	bumped.BackupCount++

	data, err := json.Marshal(&bumped)
	if err != nil {
		return storage.Op{}, fmt.Errorf("failed to marshal device: %w", err)
	}

	return storage.PutOp(storage.TableDevices, device.ID, data), nil
}

func decodeDevice(data []byte) (*models.BackupDevice, error) {
	var device models.BackupDevice
	if err := json.Unmarshal(data, &device); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal device: %w", models.ErrStorageFailure, err)
	}
	return &device, nil
}
