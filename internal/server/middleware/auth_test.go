package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/server/handlers"
	"github.com/iudanet/medpass/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testJWT = handlers.JWTConfig{
	Secret:         []byte("test-secret-key"),
	AccessTokenTTL: 15 * time.Minute,
}

func ownedBy(patientID string) OwnerFunc {
	return func() (string, error) { return patientID, nil }
}

func issue(t *testing.T, cfg handlers.JWTConfig, patientID, deviceID string) string {
	t.Helper()
	token, _, err := handlers.GenerateAccessToken(cfg, patientID, deviceID)
	require.NoError(t, err)
	return token
}

// expiredToken подписан правильным ключом, но истек минуту назад
func expiredToken(t *testing.T) string {
	t.Helper()
	claims := handlers.CustomClaims{
		PatientID: "patient-1",
		DeviceID:  "device-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "medpass",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWT.Secret)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_PutsTokenClaimsInContext(t *testing.T) {
	token := issue(t, testJWT, "patient-1", "device-a")

	var gotPatient, gotDevice string
	handler := AuthMiddleware(setupTestLogger(), testJWT, ownedBy("patient-1"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPatient, _ = handlers.GetPatientID(r.Context())
			gotDevice, _ = handlers.GetDeviceID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "patient-1", gotPatient)
	assert.Equal(t, "device-a", gotDevice)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	otherSecret := handlers.JWTConfig{Secret: []byte("another-daemon"), AccessTokenTTL: time.Minute}

	tests := []struct {
		owner      OwnerFunc
		name       string
		header     string
		wantError  string
		wantStatus int
	}{
		{
			name:       "no identity yet",
			owner:      func() (string, error) { return "", models.ErrNoIdentity },
			header:     "Bearer " + issue(t, testJWT, "patient-1", "device-a"),
			wantStatus: http.StatusConflict,
			wantError:  "no patient identity on this device",
		},
		{
			name:       "owner lookup fails",
			owner:      func() (string, error) { return "", errors.New("storage closed") },
			header:     "Bearer " + issue(t, testJWT, "patient-1", "device-a"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
		{
			name:       "missing header",
			owner:      ownedBy("patient-1"),
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: missing token",
		},
		{
			name:       "basic auth",
			owner:      ownedBy("patient-1"),
			header:     "Basic cGF0aWVudDo0ODIxOTM=",
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token format",
		},
		{
			name:       "bearer without token",
			owner:      ownedBy("patient-1"),
			header:     "Bearer ",
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token format",
		},
		{
			name:       "garbage token",
			owner:      ownedBy("patient-1"),
			header:     "Bearer not.a.jwt",
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token",
		},
		{
			name:       "expired unlock",
			owner:      ownedBy("patient-1"),
			header:     "Bearer " + expiredToken(t),
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token",
		},
		{
			name:       "signed by another daemon",
			owner:      ownedBy("patient-1"),
			header:     "Bearer " + issue(t, otherSecret, "patient-1", "device-a"),
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token",
		},
		{
			// После сброса в той же базе другой пациент
			name:       "issued before reset",
			owner:      ownedBy("patient-2"),
			header:     "Bearer " + issue(t, testJWT, "patient-1", "device-a"),
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized: invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := AuthMiddleware(setupTestLogger(), testJWT, tt.owner)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true }),
			)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/records/b692f5c0-2d88-4aa1-a9e1-13aa6e4976d5", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.False(t, reached, "handler must not run")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		header  string
		want    string
	}{
		{name: "canonical", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "extra spaces", header: "Bearer   abc  ", want: "abc"},
		{name: "empty", header: "", wantErr: errMissingToken},
		{name: "scheme only", header: "Bearer", wantErr: errTokenFormat},
		{name: "other scheme", header: "Token abc", wantErr: errTokenFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := bearerToken(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
