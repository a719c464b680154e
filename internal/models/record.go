package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/medpass/internal/crdt"
)

// RecordType identifies the clinical entity kind carried by a record.
type RecordType string

// Record types. Only prescriptions carry a payload today; the others are
// used as audit record types and reserved for future payload variants.
const (
	RecordTypePrescription  RecordType = "prescription"
	RecordTypePatient       RecordType = "patient"
	RecordTypeConsultation  RecordType = "consultation"
	RecordTypeInvestigation RecordType = "investigation"
)

// Status is the clinical lifecycle status of a record.
type Status string

const (
	StatusActive       Status = "active"
	StatusCompleted    Status = "completed"
	StatusDiscontinued Status = "discontinued"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDiscontinued:
		return true
	}
	return false
}

// Payload is a tagged variant over the known record types.
// Exactly one field is set and it must match Record.Type.
type Payload struct {
	Prescription *Prescription `json:"prescription,omitempty"`
}

// Type returns the record type of the variant that is set.
func (p Payload) Type() (RecordType, error) {
	if p.Prescription != nil {
		return RecordTypePrescription, nil
	}
	return "", fmt.Errorf("%w: empty payload", ErrInvalidRecord)
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	out := Payload{}
	if p.Prescription != nil {
		rx := *p.Prescription
		out.Prescription = &rx
	}
	return out
}

// PayloadPatch is a partial update. Absent (nil) fields are left unchanged.
type PayloadPatch struct {
	Status       *Status            `json:"status,omitempty"`
	Prescription *PrescriptionPatch `json:"prescription,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p PayloadPatch) IsEmpty() bool {
	return p.Status == nil && p.Prescription.IsEmpty()
}

// Record is a versioned clinical entity. It is exclusively owned by the record store.
type Record struct {
	CreatedAt      time.Time          `json:"created_at"`
	LastModified   time.Time          `json:"last_modified"`
	VersionVector  crdt.VersionVector `json:"version_vector"`
	Payload        Payload            `json:"payload"`
	ID             string             `json:"id"`
	PatientID      string             `json:"patient_id"`
	Type           RecordType         `json:"type"`
	Status         Status             `json:"status"`
	OriginDeviceID string             `json:"origin_device_id"`
	IsDeleted      bool               `json:"is_deleted"`
}

// Validate checks the structural invariants of a record.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if r.PatientID == "" {
		return fmt.Errorf("%w: empty patient id", ErrInvalidRecord)
	}
	kind, err := r.Payload.Type()
	if err != nil {
		return err
	}
	if kind != r.Type {
		return fmt.Errorf("%w: payload %s does not match type %s", ErrInvalidRecord, kind, r.Type)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	if len(r.VersionVector) == 0 {
		return fmt.Errorf("%w: empty version vector", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Payload = r.Payload.Clone()
	out.VersionVector = r.VersionVector.Clone()
	return &out
}

// Marshal returns the persisted (and transferred) JSON form of the record.
// Map keys are emitted sorted, so equal records yield equal bytes.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

// UnmarshalRecord decodes a record from its persisted JSON form.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal record: %v", ErrInvalidRecord, err)
	}
	if r.VersionVector == nil {
		r.VersionVector = crdt.VersionVector{}
	}
	return &r, nil
}
