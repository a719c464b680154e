package models

import (
	"encoding/json"
	"time"
)

// Action is the kind of mutation recorded in the audit ledger.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionSync    Action = "sync"
	ActionRestore Action = "restore"
)

// AuditLogEntry is one append-only ledger entry. It never references a live
// Record, only its id and a point-in-time serialized diff.
type AuditLogEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Changes    json.RawMessage `json:"changes,omitempty"` // Changes сериализованный diff или nil
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"` // DeviceID устройство, выполнившее действие
	Action     Action          `json:"action"`
	RecordType RecordType      `json:"record_type"`
	RecordID   string          `json:"record_id"`
	Seq        uint64          `json:"seq"` // Seq порядковый номер Лампорта на устройстве
}

// Before reports whether e was appended before other in ledger order
// (timestamp first, Lamport sequence as the tiebreak).
func (e *AuditLogEntry) Before(other *AuditLogEntry) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.Seq < other.Seq
}
