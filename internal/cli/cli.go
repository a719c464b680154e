// Package cli implements the medpass command line interface over an
// opened app.App.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/cli/iocli"
	"github.com/iudanet/medpass/internal/config"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/validation"
)

// ErrUnknownCommand is returned by Run for a command it does not know
var ErrUnknownCommand = errors.New("unknown command")

// PINEnv names the environment variable read before any other PIN source
const PINEnv = "MEDPASS_PIN"

// PINSources are the non-interactive ways to pass the PIN
type PINSources struct {
	FromFile string
	FromArgs string
}

// Cli runs one command against an opened installation
type Cli struct {
	io     iocli.IO
	app    *app.App
	cfg    *config.Config
	logger *slog.Logger
	pins   PINSources
}

func New(io iocli.IO, a *app.App, cfg *config.Config, logger *slog.Logger, pins PINSources) *Cli {
	return &Cli{
		io:     io,
		app:    a,
		cfg:    cfg,
		logger: logger,
		pins:   pins,
	}
}

// Run dispatches command. args excludes the command itself.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "init":
		return c.runInit(ctx)
	case "unlock-check":
		return c.runUnlockCheck(ctx)
	case "change-pin":
		return c.runChangePIN(ctx)
	case "recover":
		return c.runRecover(ctx)
	case "reset":
		return c.runReset(ctx)
	case "add":
		return c.runAdd(ctx)
	case "list":
		return c.runList(ctx, args)
	case "show":
		return c.runShow(ctx, args)
	case "update":
		return c.runUpdate(ctx, args)
	case "status":
		return c.runStatus(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "restore":
		return c.runRestore(ctx, args)
	case "history":
		return c.runHistory(ctx, args)
	case "audit":
		return c.runAudit(ctx, args)
	case "devices":
		return c.runDevices(ctx)
	case "pair":
		return c.runPair(ctx, args)
	case "unpair":
		return c.runUnpair(ctx, args)
	case "sync":
		return c.runSync(ctx, args)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// unlock verifies the PIN before any access to records
func (c *Cli) unlock(ctx context.Context) error {
	_, err := c.unlockPIN(ctx)
	return err
}

// unlockPIN is unlock returning the verified PIN
func (c *Cli) unlockPIN(ctx context.Context) (string, error) {
	if err := c.app.RequireIdentity(); err != nil {
		if errors.Is(err, models.ErrNoIdentity) {
			return "", fmt.Errorf("%w. Please run 'medpass init' first", err)
		}
		return "", err
	}

	pin, err := c.getPIN("PIN: ")
	if err != nil {
		return "", err
	}

	ok, err := c.app.Identity.VerifyPIN(ctx, pin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", models.ErrInvalidPIN
	}
	return pin, nil
}

// getPIN reads the PIN from, in priority order:
// 1. MEDPASS_PIN environment variable
// 2. --pin-file
// 3. --pin
// 4. interactive prompt
func (c *Cli) getPIN(prompt string) (string, error) {
	if envPIN := os.Getenv(PINEnv); envPIN != "" {
		return envPIN, nil
	}

	if c.pins.FromFile != "" {
		content, err := os.ReadFile(c.pins.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read PIN file: %w", err)
		}
		pin := strings.TrimSpace(string(content))
		if pin == "" {
			return "", fmt.Errorf("PIN file is empty")
		}
		return pin, nil
	}

	if c.pins.FromArgs != "" {
		return c.pins.FromArgs, nil
	}

	pin, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	if pin == "" {
		return "", fmt.Errorf("PIN cannot be empty")
	}
	return pin, nil
}

// readNewPIN always prompts, twice
func (c *Cli) readNewPIN(prompt string) (string, error) {
	pin, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	if err := validation.ValidatePIN(pin); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	confirm, err := c.io.ReadPassword("Repeat PIN: ")
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	if confirm != pin {
		return "", fmt.Errorf("%w: PINs do not match", models.ErrInvalidInput)
	}
	return pin, nil
}

func requireArg(args []string, usage string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("missing argument. Usage: %s", usage)
	}
	return args[0], nil
}

func PrintUsage(io iocli.IO) {
	io.Println("MedPass - personal health record")
	io.Println()
	io.Println("Usage:")
	io.Println("  medpass [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  --version            Show version information")
	io.Println("  --config PATH        Path to config file (default: CONFIG_PATH or ./medpass.yaml)")
	io.Println("  --db PATH            Path to local database (overrides config)")
	io.Println("  --pin PIN            PIN (not recommended, use env var or file)")
	io.Println("  --pin-file PATH      Path to file containing the PIN")
	io.Println()
	io.Println("PIN Priority (highest to lowest):")
	io.Println("  1. MEDPASS_PIN environment variable")
	io.Println("  2. --pin-file")
	io.Println("  3. --pin")
	io.Println("  4. Interactive prompt")
	io.Println()
	io.Println("Identity:")
	io.Println("  init                         Create the patient identity on this device")
	io.Println("  unlock-check                 Verify the PIN")
	io.Println("  change-pin                   Change the PIN")
	io.Println("  recover                      Set a new PIN using the recovery answer")
	io.Println("  reset                        Erase all local data")
	io.Println()
	io.Println("Records:")
	io.Println("  add                          Add a prescription")
	io.Println("  list [--all]                 List prescriptions (--all includes deleted)")
	io.Println("  show <id>                    Show one prescription")
	io.Println("  update <id>                  Edit a prescription")
	io.Println("  status <id> <status>         Set status (active, completed, discontinued)")
	io.Println("  delete <id>                  Delete a prescription")
	io.Println("  restore <id>                 Restore a deleted prescription")
	io.Println("  history <id>                 Show the audit trail of a prescription")
	io.Println("  audit [limit]                Show recent audit entries")
	io.Println()
	io.Println("Devices and sync:")
	io.Println("  devices                      List paired devices")
	io.Println("  pair <id> <name> [flags]     Pair a device (--transport, --relationship)")
	io.Println("  unpair <id>                  Remove a paired device")
	io.Println("  sync --with PATH             Sync with another local database")
	io.Println("  sync --peer URL --device ID  Sync with a medpassd daemon")
	io.Println()
	io.Println("Examples:")
	io.Println("  medpass init")
	io.Println("  export MEDPASS_PIN=482193")
	io.Println("  medpass add")
	io.Println("  medpass status b692f5c0-2d88-4aa1-a9e1-13aa6e4976d5 completed")
	io.Println("  medpass sync --with /media/usb/clinic-tablet.db")
	io.Println("  medpass sync --peer ws://127.0.0.1:8787 --device 7f3c2a10-...")
}
