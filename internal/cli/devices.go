package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/iudanet/medpass/internal/models"
)

func (c *Cli) runAudit(ctx context.Context, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: limit must be a positive number", models.ErrInvalidInput)
		}
		limit = n
	}

	if err := c.unlock(ctx); err != nil {
		return err
	}

	entries, err := c.app.Ledger.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	c.io.Println("=== Audit Log ===")
	c.io.Println()
	for _, e := range entries {
		printEntry(c.io, e)
	}
	c.io.Println()
	c.io.Printf("Shown: %d\n", len(entries))
	return nil
}

func (c *Cli) runDevices(ctx context.Context) error {
	if err := c.unlock(ctx); err != nil {
		return err
	}

	devices, err := c.app.Devices.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	c.io.Printf("This device: %s\n\n", c.app.Patient.DeviceID)
	if len(devices) == 0 {
		c.io.Println("No paired devices.")
		return nil
	}
	for _, d := range devices {
		printDevice(c.io, d)
	}
	return nil
}

func (c *Cli) runPair(ctx context.Context, args []string) error {
	const usage = "medpass pair <id> <name> [--transport TYPE] [--relationship REL] [--public-key KEY]"
	if len(args) < 2 {
		return fmt.Errorf("missing argument. Usage: %s", usage)
	}

	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	transport := fs.String("transport", string(models.TransportWebsocket), "ble, nfc, dht, websocket or local")
	relationship := fs.String("relationship", "", "family, friend or clinic")
	publicKey := fs.String("public-key", "", "peer public key (base64)")
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("%w. Usage: %s", err, usage)
	}

	if err := c.unlock(ctx); err != nil {
		return err
	}

	device := &models.BackupDevice{
		ID:            args[0],
		Name:          args[1],
		PublicKey:     *publicKey,
		TransportType: models.TransportType(*transport),
		Relationship:  *relationship,
	}
	if err := c.app.Devices.Pair(ctx, device); err != nil {
		return fmt.Errorf("failed to pair device: %w", err)
	}

	c.io.Printf("✓ Paired %s (%s)\n", device.Name, device.ID)
	return nil
}

func (c *Cli) runUnpair(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass unpair <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	if err := c.app.Devices.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to unpair device: %w", err)
	}

	c.io.Println("✓ Device removed")
	return nil
}
