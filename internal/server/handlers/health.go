package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/pkg/api"
)

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	app     *app.App
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, a *app.App, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		app:     a,
		version: version,
	}
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	// Проверяем, что хранилище читается
	if _, err := h.app.Identity.Current(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
		sendJSON(h.logger, w, api.HealthResponse{Status: "unavailable", Version: h.version}, http.StatusServiceUnavailable)
		return
	}

	sendJSON(h.logger, w, api.HealthResponse{
		Status:      "ok",
		Version:     h.version,
		Initialized: h.app.Patient != nil,
	}, http.StatusOK)
}
