// Package server is the local medpass daemon: the JSON API used by the UI
// and the websocket endpoint accepting sync sessions from paired devices.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/config"
	"github.com/iudanet/medpass/internal/server/handlers"
	"github.com/iudanet/medpass/internal/server/middleware"
)

const healthPath = "/api/v1/health"

// Server serves one opened installation over HTTP
type Server struct {
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	logger     *slog.Logger
	cfg        config.ServerConfig
}

// New builds the router and middleware chain. An empty JWT secret is
// replaced by a random one, so tokens do not survive a restart.
func New(a *app.App, cfg config.ServerConfig, auth config.AuthConfig, version string, logger *slog.Logger) (*Server, error) {
	secret := []byte(auth.JWTSecret)
	if len(secret) == 0 {
		var err error
		if secret, err = handlers.RandomSecret(); err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		logger.Info("Using ephemeral JWT secret")
	}
	jwtConfig := handlers.JWTConfig{Secret: secret, AccessTokenTTL: auth.TokenTTL}

	limiter := middleware.NewRateLimiter(auth.UnlockRate, auth.UnlockWindow, logger)

	healthHandler := handlers.NewHealthHandler(logger, a, version)
	unlockHandler := handlers.NewUnlockHandler(logger, a, jwtConfig)
	recordsHandler := handlers.NewRecordsHandler(logger, a)
	syncHandler := handlers.NewSyncHandler(logger, a)

	owner := func() (string, error) {
		if err := a.RequireIdentity(); err != nil {
			return "", err
		}
		return a.Patient.ID, nil
	}
	requireAuth := middleware.AuthMiddleware(logger, jwtConfig, owner)
	protected := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET "+healthPath, healthHandler.Health)
	mux.Handle("POST /api/v1/unlock", middleware.RateLimit(limiter, logger)(http.HandlerFunc(unlockHandler.Unlock)))
	mux.HandleFunc("GET /api/v1/sync", syncHandler.HandleSync)

	// Требуют токен
	mux.Handle("GET /api/v1/records", protected(recordsHandler.List))
	mux.Handle("POST /api/v1/records", protected(recordsHandler.Create))
	mux.Handle("GET /api/v1/records/{id}", protected(recordsHandler.Get))
	mux.Handle("PATCH /api/v1/records/{id}", protected(recordsHandler.Update))
	mux.Handle("DELETE /api/v1/records/{id}", protected(recordsHandler.Delete))
	mux.Handle("POST /api/v1/records/{id}/restore", protected(recordsHandler.Restore))
	mux.Handle("GET /api/v1/records/{id}/history", protected(recordsHandler.History))
	mux.Handle("GET /api/v1/audit", protected(recordsHandler.Audit))
	mux.Handle("GET /api/v1/devices", protected(recordsHandler.Devices))

	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingWithSkip(logger, []string{healthPath})(mux),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Handler returns the root handler (tests)
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return <-errCh
}
