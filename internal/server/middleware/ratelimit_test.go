package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(3, time.Minute, logger)
	defer rl.Stop()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("127.0.0.1"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("127.0.0.1"))

	// Другой клиент имеет свой лимит
	assert.True(t, rl.Allow("10.0.0.2"))

	// После окна попытки восстанавливаются
	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("127.0.0.1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(1, time.Minute, logger)
	defer rl.Stop()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("127.0.0.1")
	now = now.Add(3 * time.Minute)
	rl.cleanupOldBuckets()

	rl.mu.Lock()
	assert.Empty(t, rl.buckets)
	rl.mu.Unlock()

	rl.Stop() // повторный вызов безопасен
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(2, time.Minute, logger)
	defer rl.Stop()

	handler := RateLimit(rl, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	unlock := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/unlock", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, unlock("127.0.0.1:50000").Code)
	// Порт не влияет на ключ
	assert.Equal(t, http.StatusOK, unlock("127.0.0.1:50001").Code)

	w := unlock("127.0.0.1:50002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "too many attempts")
}

func TestClientHost(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "127.0.0.1:12345", want: "127.0.0.1"},
		{name: "ipv6 with port", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "no port", remoteAddr: "127.0.0.1", want: "127.0.0.1"},
		{name: "forwarded header ignored", remoteAddr: "127.0.0.1:1", forwarded: "203.0.113.7", want: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientHost(req))
		})
	}
}
