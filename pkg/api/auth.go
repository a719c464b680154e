package api

// UnlockRequest представляет запрос на разблокировку по PIN
type UnlockRequest struct {
	PIN string `json:"pin"` // PIN пациента (6 цифр)
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	PatientID   string `json:"patient_id"`   // идентификатор пациента
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
