package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iudanet/medpass/internal/models"
)

func (c *Cli) runAdd(ctx context.Context) error {
	if err := c.unlock(ctx); err != nil {
		return err
	}

	c.io.Println("=== Add Prescription ===")
	c.io.Println()

	rx, err := c.readPrescription()
	if err != nil {
		return err
	}

	rec, err := c.app.Records.Create(ctx, models.Payload{Prescription: rx})
	if err != nil {
		return fmt.Errorf("failed to add prescription: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Prescription added")
	c.io.Printf("ID: %s\n", rec.ID)
	return nil
}

func (c *Cli) readPrescription() (*models.Prescription, error) {
	c.io.Println("Medications:")
	for i, m := range models.SampleMedications {
		c.io.Printf("  %d. %s (%s)\n", i+1, m.Display, m.Code)
	}

	choice, err := c.io.ReadInput("Medication (number, code or name): ")
	if err != nil {
		return nil, fmt.Errorf("failed to read medication: %w", err)
	}

	rx := &models.Prescription{}
	defaultDosage := ""
	if med, ok := pickMedication(choice); ok {
		rx.MedicationCode = med.Code
		rx.MedicationDisplay = med.Display
		defaultDosage = med.DefaultDosage
	} else {
		rx.MedicationDisplay = choice
	}

	rx.Dosage, err = c.readWithDefault("Dosage", defaultDosage)
	if err != nil {
		return nil, err
	}

	c.io.Println("Frequencies:")
	for i, f := range models.Frequencies {
		c.io.Printf("  %d. %s\n", i+1, f)
	}
	freq, err := c.io.ReadInput("Frequency (number or text): ")
	if err != nil {
		return nil, fmt.Errorf("failed to read frequency: %w", err)
	}
	rx.Frequency = pickFrequency(freq)

	if rx.PrescriberName, err = c.io.ReadInput("Prescriber (optional): "); err != nil {
		return nil, fmt.Errorf("failed to read prescriber: %w", err)
	}

	duration, err := c.io.ReadInput("Duration in days (optional): ")
	if err != nil {
		return nil, fmt.Errorf("failed to read duration: %w", err)
	}
	if duration != "" {
		days, err := strconv.Atoi(duration)
		if err != nil {
			return nil, fmt.Errorf("%w: duration must be a number of days", models.ErrInvalidInput)
		}
		rx.DurationDays = days
	}

	if rx.Notes, err = c.io.ReadInput("Notes (optional): "); err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}

	return rx, nil
}

func (c *Cli) readWithDefault(label, current string) (string, error) {
	prompt := label + ": "
	if current != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, current)
	}
	value, err := c.io.ReadInput(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	if value == "" {
		return current, nil
	}
	return value, nil
}

func pickMedication(choice string) (models.Medication, bool) {
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(models.SampleMedications) {
		return models.SampleMedications[n-1], true
	}
	return models.LookupMedication(strings.ToUpper(choice))
}

func pickFrequency(choice string) string {
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(models.Frequencies) {
		return models.Frequencies[n-1]
	}
	return choice
}

func (c *Cli) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	all := fs.Bool("all", false, "include deleted records")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w. Usage: medpass list [--all]", err)
	}

	if err := c.unlock(ctx); err != nil {
		return err
	}

	count := 0
	for rec, err := range c.app.Records.List(ctx, c.app.Patient.ID, *all) {
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		if count == 0 {
			c.io.Println("=== Prescriptions ===")
			c.io.Println()
		}
		count++
		printRecordLine(c.io, rec)
	}

	if count == 0 {
		c.io.Println("No prescriptions found.")
		c.io.Println("Use 'medpass add' to add the first one.")
		return nil
	}

	c.io.Println()
	c.io.Printf("Total: %d\n", count)
	return nil
}

func (c *Cli) runShow(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass show <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	rec, err := c.app.Records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	printRecord(c.io, rec)
	return nil
}

func (c *Cli) runUpdate(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass update <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	rec, err := c.app.Records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	current := rec.Payload.Prescription
	if current == nil {
		return fmt.Errorf("%w: record %s is not a prescription", models.ErrInvalidRecord, id)
	}

	c.io.Println("=== Edit Prescription ===")
	c.io.Println("Press Enter to keep the current value.")
	c.io.Println()

	patch := &models.PrescriptionPatch{}
	fields := []struct {
		dst     **string
		label   string
		current string
	}{
		{&patch.Dosage, "Dosage", current.Dosage},
		{&patch.Frequency, "Frequency", current.Frequency},
		{&patch.PrescriberName, "Prescriber", current.PrescriberName},
		{&patch.Notes, "Notes", current.Notes},
	}
	for _, f := range fields {
		value, err := c.readWithDefault(f.label, f.current)
		if err != nil {
			return err
		}
		if value != f.current {
			*f.dst = &value
		}
	}

	if patch.IsEmpty() {
		c.io.Println("Nothing changed.")
		return nil
	}

	updated, err := c.app.Records.Update(ctx, id, models.PayloadPatch{Prescription: patch})
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	c.io.Println("✓ Prescription updated")
	printRecord(c.io, updated)
	return nil
}

func (c *Cli) runStatus(ctx context.Context, args []string) error {
	const usage = "medpass status <id> <active|completed|discontinued>"
	if len(args) < 2 {
		return fmt.Errorf("missing argument. Usage: %s", usage)
	}
	status := models.Status(strings.ToLower(args[1]))
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q. Usage: %s", models.ErrInvalidInput, args[1], usage)
	}

	if err := c.unlock(ctx); err != nil {
		return err
	}

	if _, err := c.app.Records.SetStatus(ctx, args[0], status); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	c.io.Printf("✓ Status set to %s\n", status)
	return nil
}

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass delete <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	if err := c.app.Records.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	c.io.Println("✓ Prescription deleted. Use 'medpass restore' to undo.")
	return nil
}

func (c *Cli) runRestore(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass restore <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	if _, err := c.app.Records.Restore(ctx, id); err != nil {
		return fmt.Errorf("failed to restore record: %w", err)
	}

	c.io.Println("✓ Prescription restored")
	return nil
}

func (c *Cli) runHistory(ctx context.Context, args []string) error {
	id, err := requireArg(args, "medpass history <id>")
	if err != nil {
		return err
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	rec, err := c.app.Records.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	entries, err := c.app.Ledger.History(ctx, rec.Type, id)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	c.io.Printf("=== History of %s ===\n\n", id)
	for _, e := range entries {
		printEntry(c.io, e)
	}
	return nil
}
