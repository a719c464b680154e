package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/config"
	"github.com/iudanet/medpass/internal/identity"
	"github.com/iudanet/medpass/internal/models"
	"github.com/iudanet/medpass/internal/transport/websocket"
	"github.com/iudanet/medpass/pkg/api"
)

const testPIN = "482193"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.DriverBolt, Path: filepath.Join(t.TempDir(), "medpass.db")},
		Sync:    config.SyncConfig{NegotiateTimeout: 2 * time.Second, TransferTimeout: 2 * time.Second, LockWait: time.Second},
		Server:  config.ServerConfig{Addr: "127.0.0.1:0", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, ShutdownTimeout: time.Second},
		Auth:    config.AuthConfig{TokenTTL: time.Minute, UnlockRate: 3, UnlockWindow: time.Minute},
	}
}

func openApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func onboard(t *testing.T, a *app.App) {
	t.Helper()
	_, err := a.Onboard(context.Background(), identity.CreateParams{
		Name: "Amina Okafor", PIN: testPIN, RecoveryAnswer: "lagos",
	})
	require.NoError(t, err)
}

func startServer(t *testing.T, a *app.App) *httptest.Server {
	t.Helper()
	cfg := testConfig(t)
	srv, err := New(a, cfg.Server, cfg.Auth, "test", testLogger())
	require.NoError(t, err)
	t.Cleanup(srv.limiter.Stop)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func unlock(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: testPIN})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[api.TokenResponse](t, resp).AccessToken
}

func TestServer_Health(t *testing.T) {
	a := openApp(t)
	ts := startServer(t, a)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.False(t, health.Initialized)

	onboard(t, a)
	resp = do(t, http.MethodGet, ts.URL+"/api/v1/health", "", nil)
	assert.True(t, decode[api.HealthResponse](t, resp).Initialized)
}

func TestServer_Unlock(t *testing.T) {
	a := openApp(t)
	ts := startServer(t, a)

	// До онбординга разблокировать нечего
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: testPIN})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	onboard(t, a)

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: "12"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// unlock_rate: 3 попытки на окно, включая неудачные
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: testPIN})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_UnlockIssuesToken(t *testing.T) {
	a := openApp(t)
	onboard(t, a)
	ts := startServer(t, a)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/unlock", "", api.UnlockRequest{PIN: testPIN})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[api.TokenResponse](t, resp)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, a.Patient.ID, token.PatientID)
	assert.Equal(t, int64(60), token.ExpiresIn)
}

func TestServer_RecordsRequireToken(t *testing.T) {
	a := openApp(t)
	onboard(t, a)
	ts := startServer(t, a)

	for _, path := range []string{"/api/v1/records", "/api/v1/audit", "/api/v1/devices", "/api/v1/records/x"} {
		resp := do(t, http.MethodGet, ts.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/records", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RecordLifecycle(t *testing.T) {
	a := openApp(t)
	onboard(t, a)
	ts := startServer(t, a)
	token := unlock(t, ts)

	// Создание
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/records", token, models.Payload{
		Prescription: &models.Prescription{MedicationDisplay: "Amoxicillin", Dosage: "500mg", Frequency: "Twice daily"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Record](t, resp)
	assert.Equal(t, a.Patient.ID, created.PatientID)

	// Невалидный рецепт
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/records", token, models.Payload{
		Prescription: &models.Prescription{MedicationDisplay: "Amoxicillin"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	recordURL := ts.URL + "/api/v1/records/" + created.ID

	// Обновление
	dosage := "750mg"
	resp = do(t, http.MethodPatch, recordURL, token, models.PayloadPatch{
		Prescription: &models.PrescriptionPatch{Dosage: &dosage},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Record](t, resp)
	assert.Equal(t, "750mg", updated.Payload.Prescription.Dosage)
	assert.Equal(t, uint64(2), updated.VersionVector[a.Patient.DeviceID])

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/records", token, nil)
	assert.Len(t, decode[api.RecordsResponse](t, resp).Records, 1)

	// Удаление
	resp = do(t, http.MethodDelete, recordURL, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, recordURL, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/records?include_deleted=true", token, nil)
	listed := decode[api.RecordsResponse](t, resp).Records
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsDeleted)

	// Восстановление
	resp = do(t, http.MethodPost, recordURL+"/restore", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, recordURL+"/restore", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// История
	resp = do(t, http.MethodGet, recordURL+"/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[api.AuditResponse](t, resp).Entries
	require.Len(t, history, 4)
	assert.Equal(t, models.ActionRestore, history[0].Action, "newest first")
	assert.Equal(t, models.ActionCreate, history[3].Action)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/audit?limit=2", token, nil)
	assert.Len(t, decode[api.AuditResponse](t, resp).Entries, 2)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/audit?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_TokenRejectedAfterReset(t *testing.T) {
	a := openApp(t)
	onboard(t, a)
	ts := startServer(t, a)
	token := unlock(t, ts)

	require.NoError(t, a.Reset(context.Background()))
	onboard(t, a)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/records", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_SyncEndpoint(t *testing.T) {
	ctx := context.Background()

	daemon := openApp(t)
	onboard(t, daemon)
	ts := startServer(t, daemon)

	phone := openApp(t)
	_, err := phone.Enroll(ctx, daemon.Patient, testPIN)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sync?device_id=" + phone.Patient.DeviceID

	t.Run("unpaired device is rejected", func(t *testing.T) {
		_, err := websocket.Dial(ctx, wsURL, nil)
		assert.Error(t, err)
	})

	require.NoError(t, daemon.Devices.Pair(ctx, &models.BackupDevice{
		ID: phone.Patient.DeviceID, Name: "phone", TransportType: models.TransportWebsocket,
	}))
	daemonDevice := &models.BackupDevice{
		ID: daemon.Patient.DeviceID, Name: "daemon", TransportType: models.TransportWebsocket,
	}
	require.NoError(t, phone.Devices.Pair(ctx, daemonDevice))

	rec, err := phone.Records.Create(ctx, models.Payload{Prescription: &models.Prescription{
		MedicationDisplay: "Metformin", Dosage: "500mg", Frequency: "Once daily",
	}})
	require.NoError(t, err)

	conn, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	result, err := phone.Sync.Run(ctx, daemonDevice, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	// Демон фиксирует свою сторону после Done; ждем появления записи
	assert.Eventually(t, func() bool {
		got, err := daemon.Records.Get(ctx, rec.ID)
		return err == nil && got.Payload.Prescription.Dosage == "500mg"
	}, 2*time.Second, 20*time.Millisecond)
}
