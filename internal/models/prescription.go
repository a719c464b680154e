package models

// Prescription представляет назначение лекарства (поля по мотивам FHIR MedicationRequest).
type Prescription struct {
	MedicationCode    string `json:"medication_code,omitempty"`    // MedicationCode код из справочника (например, "AMOX")
	MedicationDisplay string `json:"medication_display"`           // MedicationDisplay отображаемое название препарата
	Dosage            string `json:"dosage"`                       // Dosage дозировка ("500mg", "1 tablet")
	Frequency         string `json:"frequency"`                    // Frequency частота приема ("Twice daily")
	PrescriberName    string `json:"prescriber_name,omitempty"`    // PrescriberName имя врача
	PrescriberID      string `json:"prescriber_id,omitempty"`      // PrescriberID идентификатор врача
	Notes             string `json:"notes,omitempty"`              // Notes дополнительные заметки
	DurationDays      int    `json:"duration_days,omitempty"`      // DurationDays длительность курса в днях
}

// PrescriptionPatch is the partial form of Prescription.
// A nil field is absent and leaves the stored value unchanged.
type PrescriptionPatch struct {
	MedicationCode    *string `json:"medication_code,omitempty"`
	MedicationDisplay *string `json:"medication_display,omitempty"`
	Dosage            *string `json:"dosage,omitempty"`
	Frequency         *string `json:"frequency,omitempty"`
	PrescriberName    *string `json:"prescriber_name,omitempty"`
	PrescriberID      *string `json:"prescriber_id,omitempty"`
	Notes             *string `json:"notes,omitempty"`
	DurationDays      *int    `json:"duration_days,omitempty"`
}

// IsEmpty reports whether the patch carries no fields at all.
func (p *PrescriptionPatch) IsEmpty() bool {
	return p == nil || (p.MedicationCode == nil && p.MedicationDisplay == nil && p.Dosage == nil &&
		p.Frequency == nil && p.PrescriberName == nil && p.PrescriberID == nil &&
		p.Notes == nil && p.DurationDays == nil)
}

// Apply returns a copy of base with every present patch field written over it.
func (p *PrescriptionPatch) Apply(base Prescription) Prescription {
	if p == nil {
		return base
	}
	out := base
	setString(&out.MedicationCode, p.MedicationCode)
	setString(&out.MedicationDisplay, p.MedicationDisplay)
	setString(&out.Dosage, p.Dosage)
	setString(&out.Frequency, p.Frequency)
	setString(&out.PrescriberName, p.PrescriberName)
	setString(&out.PrescriberID, p.PrescriberID)
	setString(&out.Notes, p.Notes)
	if p.DurationDays != nil {
		out.DurationDays = *p.DurationDays
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Medication is an entry of the built-in medication reference list.
type Medication struct {
	Code          string
	Display       string
	DefaultDosage string
}

// SampleMedications is the reference list offered by the CLI when adding a prescription.
var SampleMedications = []Medication{
	{Code: "ACT", Display: "Artemisinin-based Combination Therapy (Malaria)", DefaultDosage: "1 tablet"},
	{Code: "AMOX", Display: "Amoxicillin", DefaultDosage: "500mg"},
	{Code: "PARA", Display: "Paracetamol", DefaultDosage: "500mg"},
	{Code: "ORS", Display: "Oral Rehydration Salts", DefaultDosage: "1 sachet"},
	{Code: "IBU", Display: "Ibuprofen", DefaultDosage: "400mg"},
	{Code: "METRO", Display: "Metronidazole", DefaultDosage: "400mg"},
	{Code: "COARTEM", Display: "Coartem (Artemether/Lumefantrine)", DefaultDosage: "4 tablets"},
	{Code: "ALBEN", Display: "Albendazole", DefaultDosage: "400mg"},
}

// Frequencies lists the dosing frequencies offered by the CLI.
var Frequencies = []string{
	"Once daily",
	"Twice daily",
	"Three times daily",
	"Four times daily",
	"Every 6 hours",
	"Every 8 hours",
	"As needed",
	"Before meals",
	"After meals",
}

// LookupMedication finds a reference medication by its code.
func LookupMedication(code string) (Medication, bool) {
	for _, m := range SampleMedications {
		if m.Code == code {
			return m, true
		}
	}
	return Medication{}, false
}
