// Package merge resolves a local record against a copy received from a peer.
//
// Resolution is deterministic and symmetric: two devices resolving the same
// pair in opposite roles choose the same winner and the same merged vector.
// Counters are never incremented here.
package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/iudanet/medpass/internal/crdt"
	"github.com/iudanet/medpass/internal/models"
)

// Decision names the branch the resolver took
type Decision string

const (
	DecisionKeepLocal      Decision = "keep-local"
	DecisionTakeRemote     Decision = "take-remote"
	DecisionImport         Decision = "import"
	DecisionConflictLocal  Decision = "conflict-local"
	DecisionConflictRemote Decision = "conflict-remote"
)

// IsConflict reports whether the decision came from concurrent edits
func (d Decision) IsConflict() bool {
	return d == DecisionConflictLocal || d == DecisionConflictRemote
}

// Outcome is the result of resolving one record
type Outcome struct {
	// Record is the state to persist; equal to local when nothing changed
	Record   *models.Record
	Decision Decision
	// Entries are unstamped sync audit entries; empty when nothing changed
	Entries []models.AuditLogEntry
	Changed bool
}

// Engine resolves records on behalf of one device
type Engine struct {
	logger    *slog.Logger
	deviceID  string
	patientID string
}

// NewEngine creates a merge engine for the records of patientID.
// deviceID is recorded in the audit entries.
func NewEngine(deviceID, patientID string, logger *slog.Logger) *Engine {
	return &Engine{deviceID: deviceID, patientID: patientID, logger: logger}
}

// Resolve merges remote into local. local may be nil when the id is unknown here.
func (e *Engine) Resolve(local, remote *models.Record) (*Outcome, error) {
	if err := remote.Validate(); err != nil {
		return nil, err
	}
	if remote.PatientID != e.patientID {
		return nil, fmt.Errorf("%w: record %s belongs to another patient", models.ErrInvalidRecord, remote.ID)
	}

	if local == nil {
		chosen := remote.Clone()
		return e.outcome(nil, chosen, DecisionImport, "prior", nil)
	}

	if local.ID != remote.ID {
		return nil, fmt.Errorf("%w: id mismatch %s != %s", models.ErrInvalidRecord, local.ID, remote.ID)
	}
	if local.PatientID != e.patientID {
		return nil, fmt.Errorf("%w: local record %s belongs to another patient", models.ErrInvalidRecord, local.ID)
	}

	switch local.VersionVector.Compare(remote.VersionVector) {
	case crdt.Equal, crdt.Dominates:
		return &Outcome{Record: local.Clone(), Decision: DecisionKeepLocal}, nil

	case crdt.DominatedBy:
		return e.outcome(local, remote.Clone(), DecisionTakeRemote, "prior", local)

	default:
		localWins := concurrentWinnerIsLocal(local, remote)

		winner, loser, decision := remote, local, DecisionConflictRemote
		if localWins {
			winner, loser, decision = local, remote, DecisionConflictLocal
		}

		merged := winner.Clone()
		merged.VersionVector = local.VersionVector.Merge(remote.VersionVector)

		e.logger.Info("Concurrent edit resolved",
			"record_id", local.ID,
			"decision", decision,
			"local_vector", local.VersionVector,
			"remote_vector", remote.VersionVector,
		)

		return e.outcome(local, merged, decision, "discarded", loser)
	}
}

// concurrentWinnerIsLocal applies the concurrent-edit rules:
// a live side beats a tombstone only when its vector sum is strictly higher;
// otherwise the side whose exclusive advances include the greatest device id wins.
func concurrentWinnerIsLocal(local, remote *models.Record) bool {
	if local.IsDeleted != remote.IsDeleted {
		live, dead := local, remote
		if local.IsDeleted {
			live, dead = remote, local
		}
		if live.VersionVector.Sum() > dead.VersionVector.Sum() {
			return live == local
		}
	}

	return tiebreakID(local.VersionVector, remote.VersionVector) > tiebreakID(remote.VersionVector, local.VersionVector)
}

// tiebreakID is the greatest device id where v is ahead of other
func tiebreakID(v, other crdt.VersionVector) string {
	devices := v.ExclusiveDevices(other)
	if len(devices) == 0 {
		return ""
	}
	return slices.Max(devices)
}

// outcome builds the result and, unless chosen is byte-identical to local,
// one sync audit entry describing the decision.
func (e *Engine) outcome(local, chosen *models.Record, decision Decision, otherKey string, other *models.Record) (*Outcome, error) {
	chosenBytes, err := chosen.Marshal()
	if err != nil {
		return nil, err
	}

	if local != nil {
		localBytes, err := local.Marshal()
		if err != nil {
			return nil, err
		}
		if bytes.Equal(localBytes, chosenBytes) {
			return &Outcome{Record: chosen, Decision: decision}, nil
		}
	}

	var otherBytes json.RawMessage = []byte("null")
	if other != nil {
		if otherBytes, err = other.Marshal(); err != nil {
			return nil, err
		}
	}

	changes, err := json.Marshal(map[string]any{
		"decision": decision,
		otherKey:   otherBytes,
		"chosen":   json.RawMessage(chosenBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merge changes: %w", err)
	}

	entry := models.AuditLogEntry{
		DeviceID:   e.deviceID,
		Action:     models.ActionSync,
		RecordType: chosen.Type,
		RecordID:   chosen.ID,
		Changes:    changes,
	}

	return &Outcome{
		Record:   chosen,
		Decision: decision,
		Entries:  []models.AuditLogEntry{entry},
		Changed:  true,
	}, nil
}
