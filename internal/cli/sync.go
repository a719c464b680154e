package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/sync"
	"github.com/iudanet/medpass/internal/transport/memory"
	"github.com/iudanet/medpass/internal/transport/websocket"
)

const syncPath = "/api/v1/sync"

func (c *Cli) runSync(ctx context.Context, args []string) error {
	const usage = "medpass sync --with PATH | --peer URL --device ID"

	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	with := fs.String("with", "", "path of another local database")
	peer := fs.String("peer", "", "medpassd websocket URL")
	deviceID := fs.String("device", "", "paired device id of the daemon")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w. Usage: %s", err, usage)
	}

	switch {
	case *with != "" && *peer == "":
		pin, err := c.unlockPIN(ctx)
		if err != nil {
			return err
		}
		return c.syncWith(ctx, *with, pin)
	case *peer != "" && *with == "" && *deviceID != "":
		if err := c.unlock(ctx); err != nil {
			return err
		}
		return c.syncPeer(ctx, *peer, *deviceID)
	default:
		return fmt.Errorf("%w. Usage: %s", models.ErrInvalidInput, usage)
	}
}

// syncWith runs both sides of a session in this process over the memory
// transport. An empty database at path is enrolled as a new device of the
// same patient first.
func (c *Cli) syncWith(ctx context.Context, path, pin string) error {
	if samePath(path, c.cfg.Storage.Path) {
		return fmt.Errorf("%w: cannot sync a database with itself", models.ErrInvalidInput)
	}

	cfg := *c.cfg
	cfg.Storage.Path = path

	other, err := app.Open(ctx, &cfg, c.logger.With("store", path))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := other.Close(); err != nil {
			c.logger.Error("failed to close database", "path", path, "error", err)
		}
	}()

	if other.Patient == nil {
		if _, err := other.Enroll(ctx, c.app.Patient, pin); err != nil {
			return fmt.Errorf("failed to enroll %s: %w", path, err)
		}
		c.io.Printf("Enrolled %s as device %s\n", path, other.Patient.DeviceID)
	}
	if other.Patient.ID != c.app.Patient.ID {
		return fmt.Errorf("%w: %s belongs to another patient", models.ErrInvalidInput, path)
	}

	peer, err := ensurePaired(ctx, c.app, other.Patient.DeviceID, filepath.Base(path))
	if err != nil {
		return err
	}
	back, err := ensurePaired(ctx, other, c.app.Patient.DeviceID, "medpass")
	if err != nil {
		return err
	}

	local, remote := memory.NewPipe(c.app.Patient.DeviceID, other.Patient.DeviceID)
	defer local.Close()
	defer remote.Close()

	var result *sync.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result, err = c.app.Sync.Run(gctx, peer, local)
		return err
	})
	g.Go(func() error {
		_, err := other.Sync.Run(gctx, back, remote)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	c.printResult(result)
	return nil
}

func (c *Cli) syncPeer(ctx context.Context, rawURL, deviceID string) error {
	device, err := c.app.Devices.Get(ctx, deviceID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("device %s is not paired. Use 'medpass pair' first", deviceID)
	}
	if err != nil {
		return err
	}

	endpoint, err := syncURL(rawURL, c.app.Patient.DeviceID)
	if err != nil {
		return err
	}

	conn, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("failed to close connection", "error", err)
		}
	}()

	result, err := c.app.Sync.Run(ctx, device, conn)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	c.printResult(result)
	return nil
}

// syncURL adds the sync path (when absent) and this device's id
func syncURL(raw, deviceID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid peer URL: %w", models.ErrInvalidInput, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported peer URL scheme %q", models.ErrInvalidInput, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = syncPath
	}

	q := u.Query()
	q.Set("device_id", deviceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func ensurePaired(ctx context.Context, a *app.App, deviceID, name string) (*models.BackupDevice, error) {
	device, err := a.Devices.Get(ctx, deviceID)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	device = &models.BackupDevice{ID: deviceID, Name: name, TransportType: models.TransportLocal}
	if err := a.Devices.Pair(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to pair %s: %w", name, err)
	}
	return device, nil
}

func (c *Cli) printResult(r *sync.Result) {
	c.io.Println("✓ Sync completed")
	c.io.Printf("Session:   %s\n", r.SessionID)
	c.io.Printf("Sent:      %d\n", r.Sent)
	c.io.Printf("Received:  %d\n", r.Received)
	c.io.Printf("Merged:    %d (new: %d)\n", r.Merged, r.Imported)
	c.io.Printf("Conflicts: %d\n", r.Conflicts)
	if r.Skipped > 0 {
		c.io.Printf("Skipped:   %d (integrity check failed)\n", r.Skipped)
	}
}
