package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/server/handlers"
)

var (
	errMissingToken = errors.New("missing token")
	errTokenFormat  = errors.New("invalid token format")
)

// OwnerFunc returns the id of the patient this installation belongs to,
// or models.ErrNoIdentity before onboarding
type OwnerFunc func() (string, error)

// AuthMiddleware пропускает запрос только с unlock-токеном текущего пациента.
// Токен, выданный до сброса или другому пациенту, отклоняется: после
// FactoryReset в той же базе появляется новый patient_id.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig, owner OwnerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := owner()
			if err != nil {
				if errors.Is(err, models.ErrNoIdentity) {
					writeJSONError(w, http.StatusConflict, "no patient identity on this device")
					return
				}
				logger.ErrorContext(r.Context(), "Failed to resolve owner", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				logger.Warn("Rejected request", "path", sanitizePath(r.URL.Path), "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, token)
			if err != nil {
				logger.Warn("Invalid unlock token", "path", sanitizePath(r.URL.Path), "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized: invalid token")
				return
			}
			if claims.PatientID != ownerID {
				logger.Warn("Unlock token issued for another patient", "path", sanitizePath(r.URL.Path))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized: invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), handlers.PatientIDKey, claims.PatientID)
			ctx = context.WithValue(ctx, handlers.DeviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts "<token>" from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errTokenFormat
	}
	return strings.TrimSpace(token), nil
}
