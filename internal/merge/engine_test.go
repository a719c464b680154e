package merge

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/crdt"
	"github.com/iudanet/medpass/internal/models"
)

func newTestEngine(device string) *Engine {
	return NewEngine(device, "patient-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rec(dosage string, vv crdt.VersionVector, deleted bool) *models.Record {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Record{
		ID:        "rec-1",
		PatientID: "patient-1",
		Type:      models.RecordTypePrescription,
		Payload: models.Payload{Prescription: &models.Prescription{
			MedicationDisplay: "Amoxicillin",
			Dosage:            dosage,
			Frequency:         "Twice daily",
		}},
		Status:         models.StatusActive,
		VersionVector:  vv,
		OriginDeviceID: "A",
		IsDeleted:      deleted,
		CreatedAt:      ts,
		LastModified:   ts.Add(time.Duration(vv.Sum()) * time.Minute),
	}
}

func TestEngine_Resolve(t *testing.T) {
	tests := []struct {
		local        *models.Record
		remote       *models.Record
		name         string
		wantDecision Decision
		wantDosage   string
		wantVector   crdt.VersionVector
		wantDeleted  bool
		wantChanged  bool
	}{
		{
			name:         "local dominates",
			local:        rec("1g", crdt.VersionVector{"A": 2}, false),
			remote:       rec("500mg", crdt.VersionVector{"A": 1}, false),
			wantDecision: DecisionKeepLocal,
			wantDosage:   "1g",
			wantVector:   crdt.VersionVector{"A": 2},
		},
		{
			name:         "equal vectors",
			local:        rec("500mg", crdt.VersionVector{"A": 1}, false),
			remote:       rec("500mg", crdt.VersionVector{"A": 1}, false),
			wantDecision: DecisionKeepLocal,
			wantDosage:   "500mg",
			wantVector:   crdt.VersionVector{"A": 1},
		},
		{
			name:         "remote dominates",
			local:        rec("500mg", crdt.VersionVector{"A": 1}, false),
			remote:       rec("1g", crdt.VersionVector{"A": 1, "B": 1}, false),
			wantDecision: DecisionTakeRemote,
			wantDosage:   "1g",
			wantVector:   crdt.VersionVector{"A": 1, "B": 1},
			wantChanged:  true,
		},
		{
			name:         "local absent imports remote",
			local:        nil,
			remote:       rec("1g", crdt.VersionVector{"B": 1}, false),
			wantDecision: DecisionImport,
			wantDosage:   "1g",
			wantVector:   crdt.VersionVector{"B": 1},
			wantChanged:  true,
		},
		{
			name:         "concurrent, higher exclusive device wins (remote)",
			local:        rec("A-edit", crdt.VersionVector{"A": 2}, false),
			remote:       rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false),
			wantDecision: DecisionConflictRemote,
			wantDosage:   "B-edit",
			wantVector:   crdt.VersionVector{"A": 2, "B": 1},
			wantChanged:  true,
		},
		{
			name:         "concurrent, higher exclusive device wins (local)",
			local:        rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false),
			remote:       rec("A-edit", crdt.VersionVector{"A": 2}, false),
			wantDecision: DecisionConflictLocal,
			wantDosage:   "B-edit",
			wantVector:   crdt.VersionVector{"A": 2, "B": 1},
			wantChanged:  true,
		},
		{
			name:         "live edit with higher sum beats tombstone",
			local:        rec("500mg", crdt.VersionVector{"A": 2}, true),
			remote:       rec("1g", crdt.VersionVector{"A": 1, "B": 3}, false),
			wantDecision: DecisionConflictRemote,
			wantDosage:   "1g",
			wantVector:   crdt.VersionVector{"A": 2, "B": 3},
			wantChanged:  true,
		},
		{
			name:         "tombstone survives live edit with equal sum",
			local:        rec("500mg", crdt.VersionVector{"A": 1, "Z": 1}, true),
			remote:       rec("1g", crdt.VersionVector{"A": 2}, false),
			wantDecision: DecisionConflictLocal,
			wantDosage:   "500mg",
			wantVector:   crdt.VersionVector{"A": 2, "Z": 1},
			wantDeleted:  true,
			wantChanged:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestEngine("A").Resolve(tt.local, tt.remote)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDecision, out.Decision)
			assert.Equal(t, tt.wantDosage, out.Record.Payload.Prescription.Dosage)
			assert.Equal(t, tt.wantVector, out.Record.VersionVector)
			assert.Equal(t, tt.wantDeleted, out.Record.IsDeleted)
			assert.Equal(t, tt.wantChanged, out.Changed)
			if tt.wantChanged {
				require.Len(t, out.Entries, 1)
				assert.Equal(t, models.ActionSync, out.Entries[0].Action)
				assert.Equal(t, "A", out.Entries[0].DeviceID)
			} else {
				assert.Empty(t, out.Entries)
			}
		})
	}
}

func TestEngine_ResolveIsCommutative(t *testing.T) {
	pairs := [][2]*models.Record{
		{rec("A-edit", crdt.VersionVector{"A": 2}, false), rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false)},
		{rec("x", crdt.VersionVector{"A": 3, "C": 1}, false), rec("y", crdt.VersionVector{"A": 1, "B": 5}, true)},
		{rec("x", crdt.VersionVector{"A": 1, "B": 1}, true), rec("y", crdt.VersionVector{"A": 2}, false)},
	}

	for _, p := range pairs {
		onA, err := newTestEngine("A").Resolve(p[0], p[1])
		require.NoError(t, err)
		onB, err := newTestEngine("B").Resolve(p[1], p[0])
		require.NoError(t, err)

		a, err := onA.Record.Marshal()
		require.NoError(t, err)
		b, err := onB.Record.Marshal()
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "both devices converge to the same bytes")
		assert.Equal(t, onA.Decision.IsConflict(), onB.Decision.IsConflict())
	}
}

func TestEngine_ResolveOrderUnderDominance(t *testing.T) {
	base := rec("500mg", crdt.VersionVector{"A": 1}, false)
	edited := rec("750mg", crdt.VersionVector{"A": 2}, false)
	deleted := rec("750mg", crdt.VersionVector{"A": 3, "B": 1}, true)

	tests := []struct {
		name  string
		order [2]*models.Record
	}{
		{name: "edit then tombstone", order: [2]*models.Record{edited, deleted}},
		{name: "tombstone then edit", order: [2]*models.Record{deleted, edited}},
	}

	var results []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine("C")
			current := base
			for _, remote := range tt.order {
				out, err := engine.Resolve(current, remote)
				require.NoError(t, err)
				assert.False(t, out.Decision.IsConflict())
				current = out.Record
			}

			assert.True(t, current.IsDeleted)
			assert.Equal(t, crdt.VersionVector{"A": 3, "B": 1}, current.VersionVector)

			data, err := current.Marshal()
			require.NoError(t, err)
			results = append(results, string(data))
		})
	}

	require.Len(t, results, 2)
	assert.Equal(t, results[0], results[1], "merge order does not change the final record")
}

func TestEngine_ResolveIsIdempotent(t *testing.T) {
	engine := newTestEngine("A")
	local := rec("A-edit", crdt.VersionVector{"A": 2}, false)
	remote := rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false)

	first, err := engine.Resolve(local, remote)
	require.NoError(t, err)
	require.True(t, first.Changed)

	// Повторная доставка той же удаленной версии ничего не меняет
	second, err := engine.Resolve(first.Record, remote)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Empty(t, second.Entries)
	assert.Equal(t, first.Record, second.Record)

	// Как и повторный импорт уже известной записи
	third, err := engine.Resolve(first.Record, first.Record)
	require.NoError(t, err)
	assert.Equal(t, DecisionKeepLocal, third.Decision)
	assert.False(t, third.Changed)
}

func TestEngine_ResolveDoesNotMutateInputs(t *testing.T) {
	local := rec("A-edit", crdt.VersionVector{"A": 2}, false)
	remote := rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false)

	_, err := newTestEngine("A").Resolve(local, remote)
	require.NoError(t, err)

	assert.Equal(t, crdt.VersionVector{"A": 2}, local.VersionVector)
	assert.Equal(t, crdt.VersionVector{"A": 1, "B": 1}, remote.VersionVector)
}

func TestEngine_AuditChanges(t *testing.T) {
	local := rec("A-edit", crdt.VersionVector{"A": 2}, false)
	remote := rec("B-edit", crdt.VersionVector{"A": 1, "B": 1}, false)

	out, err := newTestEngine("A").Resolve(local, remote)
	require.NoError(t, err)
	require.Len(t, out.Entries, 1)

	var changes struct {
		Decision  Decision       `json:"decision"`
		Discarded *models.Record `json:"discarded"`
		Chosen    *models.Record `json:"chosen"`
	}
	require.NoError(t, json.Unmarshal(out.Entries[0].Changes, &changes))
	assert.Equal(t, DecisionConflictRemote, changes.Decision)
	assert.Equal(t, "A-edit", changes.Discarded.Payload.Prescription.Dosage)
	assert.Equal(t, "B-edit", changes.Chosen.Payload.Prescription.Dosage)

	imported, err := newTestEngine("A").Resolve(nil, remote)
	require.NoError(t, err)
	assert.Contains(t, string(imported.Entries[0].Changes), `"prior":null`)
}

func TestEngine_ResolveRejectsMismatch(t *testing.T) {
	engine := newTestEngine("A")

	other := rec("x", crdt.VersionVector{"B": 1}, false)
	other.ID = "rec-2"
	_, err := engine.Resolve(rec("x", crdt.VersionVector{"A": 1}, false), other)
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	foreign := rec("x", crdt.VersionVector{"B": 1}, false)
	foreign.PatientID = "patient-2"
	_, err = engine.Resolve(rec("x", crdt.VersionVector{"A": 1}, false), foreign)
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	// Запись чужого пациента не импортируется, даже если локальной копии нет
	_, err = engine.Resolve(nil, foreign)
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	broken := rec("x", crdt.VersionVector{"B": 1}, false)
	broken.Payload = models.Payload{}
	_, err = engine.Resolve(nil, broken)
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}
