package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/medpass/internal/cli/iocli"
	"github.com/iudanet/medpass/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func printRecordLine(out iocli.IO, rec *models.Record) {
	rx := rec.Payload.Prescription
	if rx == nil {
		out.Printf("%s  %-12s %s\n", rec.ID, rec.Type, rec.Status)
		return
	}

	marker := ""
	if rec.IsDeleted {
		marker = " (deleted)"
	}
	out.Printf("%s  %-30s %-10s %-18s %s%s\n",
		rec.ID, truncate(rx.MedicationDisplay, 30), rx.Dosage, rx.Frequency, rec.Status, marker)
}

func printRecord(out iocli.IO, rec *models.Record) {
	out.Printf("ID:           %s\n", rec.ID)
	out.Printf("Status:       %s\n", rec.Status)
	if rx := rec.Payload.Prescription; rx != nil {
		out.Printf("Medication:   %s\n", rx.MedicationDisplay)
		if rx.MedicationCode != "" {
			out.Printf("Code:         %s\n", rx.MedicationCode)
		}
		out.Printf("Dosage:       %s\n", rx.Dosage)
		out.Printf("Frequency:    %s\n", rx.Frequency)
		if rx.PrescriberName != "" {
			out.Printf("Prescriber:   %s\n", rx.PrescriberName)
		}
		if rx.DurationDays > 0 {
			out.Printf("Duration:     %d days\n", rx.DurationDays)
		}
		if rx.Notes != "" {
			out.Printf("Notes:        %s\n", rx.Notes)
		}
	}
	out.Printf("Created:      %s\n", rec.CreatedAt.Local().Format(timeLayout))
	out.Printf("Modified:     %s\n", rec.LastModified.Local().Format(timeLayout))
	out.Printf("Version:      %s\n", formatVector(rec))
}

func printEntry(out iocli.IO, e models.AuditLogEntry) {
	out.Printf("%s  #%-4d %-8s %-12s %s  by %s\n",
		e.Timestamp.Local().Format(timeLayout), e.Seq, e.Action, e.RecordType, e.RecordID, shortID(e.DeviceID))
}

func printDevice(out iocli.IO, d *models.BackupDevice) {
	out.Printf("%s  %-20s %-10s", d.ID, truncate(d.Name, 20), d.TransportType)
	if d.Relationship != "" {
		out.Printf(" %s", d.Relationship)
	}
	out.Printf("  backups: %d  last: %s\n", d.BackupCount, formatTime(d.LastBackupDate))
}

func formatVector(rec *models.Record) string {
	ids := rec.VersionVector.Devices()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s:%d", shortID(id), rec.VersionVector[id]))
	}
	return strings.Join(parts, " ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(timeLayout)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
