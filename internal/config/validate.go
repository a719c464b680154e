package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q (got %q)", DriverBolt, DriverSQLite, c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Sync.NegotiateTimeout <= 0 || c.Sync.TransferTimeout <= 0 {
		return fmt.Errorf("sync timeouts must be > 0")
	}
	if c.Sync.LockWait < 0 {
		return fmt.Errorf("sync.lock_wait must be >= 0 (got %s)", c.Sync.LockWait)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.UnlockRate <= 0 || c.Auth.UnlockWindow <= 0 {
		return fmt.Errorf("auth.unlock_rate and auth.unlock_window must be > 0")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}

	return nil
}
