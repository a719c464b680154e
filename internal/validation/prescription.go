package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/medpass/internal/models"
)

// ValidatePrescription проверяет обязательные поля нового рецепта
func ValidatePrescription(p *models.Prescription) error {
	if p == nil {
		return fmt.Errorf("prescription cannot be empty")
	}

	var errs []error
	if strings.TrimSpace(p.MedicationDisplay) == "" {
		errs = append(errs, fmt.Errorf("medication is required"))
	}
	if strings.TrimSpace(p.Dosage) == "" {
		errs = append(errs, fmt.Errorf("dosage is required"))
	}
	if strings.TrimSpace(p.Frequency) == "" {
		errs = append(errs, fmt.Errorf("frequency is required"))
	}
	if p.DurationDays < 0 {
		errs = append(errs, fmt.Errorf("duration cannot be negative"))
	}

	return errors.Join(errs...)
}

// ValidatePatch проверяет частичное обновление: присутствующие поля не могут
// обнулить обязательные значения, статус должен быть известным
func ValidatePatch(patch models.PayloadPatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("patch has no fields")
	}

	var errs []error
	if patch.Status != nil && !patch.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", *patch.Status))
	}

	if p := patch.Prescription; p != nil {
		if p.MedicationDisplay != nil && strings.TrimSpace(*p.MedicationDisplay) == "" {
			errs = append(errs, fmt.Errorf("medication cannot be cleared"))
		}
		if p.Dosage != nil && strings.TrimSpace(*p.Dosage) == "" {
			errs = append(errs, fmt.Errorf("dosage cannot be cleared"))
		}
		if p.Frequency != nil && strings.TrimSpace(*p.Frequency) == "" {
			errs = append(errs, fmt.Errorf("frequency cannot be cleared"))
		}
		if p.DurationDays != nil && *p.DurationDays < 0 {
			errs = append(errs, fmt.Errorf("duration cannot be negative"))
		}
	}

	return errors.Join(errs...)
}
