package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/validation"
	"github.com/iudanet/medpass/pkg/api"
)

// UnlockHandler обменивает PIN пациента на access token
type UnlockHandler struct {
	logger    *slog.Logger
	app       *app.App
	jwtConfig JWTConfig
}

// NewUnlockHandler создает новый handler для разблокировки
func NewUnlockHandler(logger *slog.Logger, a *app.App, jwtConfig JWTConfig) *UnlockHandler {
	return &UnlockHandler{
		logger:    logger,
		app:       a,
		jwtConfig: jwtConfig,
	}
}

// Unlock обрабатывает POST /api/v1/unlock
func (h *UnlockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode unlock request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePIN(req.PIN); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.app.RequireIdentity(); err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	ok, err := h.app.Identity.VerifyPIN(ctx, req.PIN)
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}
	if !ok {
		// PIN в лог не пишем
		h.logger.WarnContext(ctx, "unlock failed: invalid PIN", slog.String("remote_addr", r.RemoteAddr))
		sendError(h.logger, w, "invalid PIN", http.StatusUnauthorized)
		return
	}

	patient := h.app.Patient
	token, expiresIn, err := GenerateAccessToken(h.jwtConfig, patient.ID, patient.DeviceID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "unlocked", slog.String("patient_id", patient.ID))

	sendJSON(h.logger, w, api.TokenResponse{
		AccessToken: token,
		PatientID:   patient.ID,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
