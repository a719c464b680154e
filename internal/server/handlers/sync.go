package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/transport/websocket"
)

// SyncHandler принимает входящие sync-сессии от сопряженных устройств
type SyncHandler struct {
	logger *slog.Logger
	app    *app.App
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, a *app.App) *SyncHandler {
	return &SyncHandler{logger: logger, app: a}
}

// HandleSync обрабатывает GET /api/v1/sync?device_id=...
// Соединение переключается на websocket, затем выполняется одна сессия.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.app.RequireIdentity(); err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		sendError(h.logger, w, "device_id is required", http.StatusBadRequest)
		return
	}

	// Допуск только по паре: любой локальный процесс, знающий device_id
	// сопряженного устройства, получит все записи.
	// TODO: перед Upgrade требовать challenge, подписанный device.PublicKey.
	device, err := h.app.Devices.Get(ctx, deviceID)
	if errors.Is(err, models.ErrNotFound) {
		h.logger.WarnContext(ctx, "sync from unpaired device", slog.String("device_id", deviceID))
		sendError(h.logger, w, "device is not paired", http.StatusForbidden)
		return
	}
	if err != nil {
		sendDomainError(h.logger, w, r, err)
		return
	}

	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.WarnContext(ctx, "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			h.logger.Debug("failed to close websocket", slog.Any("error", err))
		}
	}()

	result, err := h.app.Sync.Run(ctx, device, conn)
	if err != nil {
		h.logger.WarnContext(ctx, "incoming sync failed",
			slog.String("device_id", deviceID),
			slog.Any("error", err))
		return
	}

	h.logger.InfoContext(ctx, "incoming sync committed",
		slog.String("device_id", deviceID),
		slog.String("session_id", result.SessionID),
		slog.Int("merged", result.Merged),
		slog.Int("conflicts", result.Conflicts))
}
