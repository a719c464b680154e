package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/pkg/api"
)

// RecordsHandler обслуживает записи, журнал аудита и список устройств
type RecordsHandler struct {
	logger *slog.Logger
	app    *app.App
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(logger *slog.Logger, a *app.App) *RecordsHandler {
	return &RecordsHandler{logger: logger, app: a}
}

// List обрабатывает GET /api/v1/records?include_deleted=true
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	patientID, _ := GetPatientID(r.Context())

	records := make([]*models.Record, 0)
	for rec, err := range h.app.Records.List(r.Context(), patientID, includeDeleted) {
		if err != nil {
			sendDomainError(h.logger, w, r, err)
			return
		}
		records = append(records, rec)
	}

	sendJSON(h.logger, w, api.RecordsResponse{Records: records}, http.StatusOK)
}

// Create обрабатывает POST /api/v1/records
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload models.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.app.Records.Create(r.Context(), payload)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, rec, http.StatusCreated)
}

// Get обрабатывает GET /api/v1/records/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Records.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, rec, http.StatusOK)
}

// Update обрабатывает PATCH /api/v1/records/{id}
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.PayloadPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.app.Records.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, rec, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/records/{id}
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Records.SoftDelete(r.Context(), r.PathValue("id")); err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restore обрабатывает POST /api/v1/records/{id}/restore
func (h *RecordsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Records.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, rec, http.StatusOK)
}

// History обрабатывает GET /api/v1/records/{id}/history
func (h *RecordsHandler) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.app.Records.Lookup(r.Context(), id)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	entries, err := h.app.Ledger.History(r.Context(), rec.Type, id)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.AuditResponse{Entries: entries}, http.StatusOK)
}

// Audit обрабатывает GET /api/v1/audit?limit=N
func (h *RecordsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(h.logger, w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.app.Ledger.Recent(r.Context(), limit)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.AuditResponse{Entries: entries}, http.StatusOK)
}

// Devices обрабатывает GET /api/v1/devices
func (h *RecordsHandler) Devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.app.Devices.List(r.Context())
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	sendJSON(h.logger, w, api.DevicesResponse{Devices: devices}, http.StatusOK)
}
