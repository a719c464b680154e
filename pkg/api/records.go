package api

import "github.com/iudanet/medpass/internal/models"

// RecordsResponse представляет список записей
type RecordsResponse struct {
	Records []*models.Record `json:"records"`
}

// AuditResponse представляет записи журнала аудита, новейшие первыми
type AuditResponse struct {
	Entries []models.AuditLogEntry `json:"entries"`
}

// DevicesResponse представляет список сопряженных устройств
type DevicesResponse struct {
	Devices []*models.BackupDevice `json:"devices"`
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Initialized bool   `json:"initialized"` // пройден ли онбординг
}
