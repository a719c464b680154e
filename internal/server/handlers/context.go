package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// PatientIDKey ключ для хранения patient_id в контексте
	PatientIDKey contextKey = "patient_id"
	// DeviceIDKey ключ для хранения device_id в контексте
	DeviceIDKey contextKey = "device_id"
)

// GetPatientID извлекает patient_id из контекста запроса
func GetPatientID(ctx context.Context) (string, bool) {
	patientID, ok := ctx.Value(PatientIDKey).(string)
	return patientID, ok
}

// GetDeviceID извлекает device_id из контекста запроса
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(DeviceIDKey).(string)
	return deviceID, ok
}
