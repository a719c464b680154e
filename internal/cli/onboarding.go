package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/medpass/internal/identity"
	"github.com/iudanet/medpass/internal/models"
)

const defaultRecoveryQuestion = "What is the name of your first school?"

func (c *Cli) runInit(ctx context.Context) error {
	if c.app.Patient != nil {
		return fmt.Errorf("%w: this device already belongs to %s", models.ErrAlreadyExists, c.app.Patient.Name)
	}

	c.io.Println("=== Create Patient Identity ===")
	c.io.Println()

	name, err := c.io.ReadInput("Full name: ")
	if err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}

	nationalID, err := c.io.ReadInput("National ID (optional): ")
	if err != nil {
		return fmt.Errorf("failed to read national id: %w", err)
	}

	pin, err := c.readNewPIN("PIN (6 digits): ")
	if err != nil {
		return err
	}

	question, err := c.io.ReadInput(fmt.Sprintf("Recovery question [%s]: ", defaultRecoveryQuestion))
	if err != nil {
		return fmt.Errorf("failed to read recovery question: %w", err)
	}
	if question == "" {
		question = defaultRecoveryQuestion
	}

	answer, err := c.io.ReadInput("Recovery answer: ")
	if err != nil {
		return fmt.Errorf("failed to read recovery answer: %w", err)
	}

	patient, err := c.app.Onboard(ctx, identity.CreateParams{
		Name:             name,
		NationalID:       nationalID,
		PIN:              pin,
		RecoveryQuestion: question,
		RecoveryAnswer:   answer,
	})
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Identity created")
	c.io.Printf("Patient ID: %s\n", patient.ID)
	c.io.Printf("Device ID:  %s\n", patient.DeviceID)
	return nil
}

func (c *Cli) runUnlockCheck(ctx context.Context) error {
	if err := c.unlock(ctx); err != nil {
		return err
	}
	c.io.Printf("✓ PIN accepted for %s\n", c.app.Patient.Name)
	return nil
}

func (c *Cli) runChangePIN(ctx context.Context) error {
	if err := c.app.RequireIdentity(); err != nil {
		return err
	}

	oldPIN, err := c.getPIN("Current PIN: ")
	if err != nil {
		return err
	}
	newPIN, err := c.readNewPIN("New PIN: ")
	if err != nil {
		return err
	}

	if err := c.app.Identity.ChangePIN(ctx, oldPIN, newPIN); err != nil {
		return fmt.Errorf("failed to change PIN: %w", err)
	}

	c.io.Println("✓ PIN changed")
	return nil
}

func (c *Cli) runRecover(ctx context.Context) error {
	if err := c.app.RequireIdentity(); err != nil {
		return err
	}

	answer, err := c.io.ReadInput(c.app.Patient.RecoveryQuestion + " ")
	if err != nil {
		return fmt.Errorf("failed to read recovery answer: %w", err)
	}
	newPIN, err := c.readNewPIN("New PIN: ")
	if err != nil {
		return err
	}

	if err := c.app.Identity.ResetPIN(ctx, answer, newPIN); err != nil {
		return fmt.Errorf("failed to reset PIN: %w", err)
	}

	c.io.Println("✓ PIN reset. Paired devices must be paired again: the signing key changed.")
	return nil
}

func (c *Cli) runReset(ctx context.Context) error {
	if err := c.unlock(ctx); err != nil {
		return err
	}

	c.io.Println("This permanently erases the identity, every record and the audit log on this device.")
	confirm, err := c.io.ReadInput("Type RESET to confirm: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if confirm != "RESET" {
		c.io.Println("Cancelled.")
		return nil
	}

	if err := c.app.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}

	c.io.Println("✓ All local data erased")
	return nil
}
