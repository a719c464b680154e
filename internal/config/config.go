// Package config loads medpass settings from a YAML file and the environment.
package config

import "time"

// Storage drivers
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config is the root application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the local store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"MEDPASS_STORAGE_DRIVER" env-default:"bolt"`
	Path   string `yaml:"path"   env:"MEDPASS_STORAGE_PATH"   env-default:"medpass.db"`
}

// SyncConfig holds per-phase limits of a sync session.
type SyncConfig struct {
	NegotiateTimeout time.Duration `yaml:"negotiate_timeout" env:"MEDPASS_SYNC_NEGOTIATE_TIMEOUT" env-default:"30s"`
	TransferTimeout  time.Duration `yaml:"transfer_timeout"  env:"MEDPASS_SYNC_TRANSFER_TIMEOUT"  env-default:"2m"`
	LockWait         time.Duration `yaml:"lock_wait"         env:"MEDPASS_SYNC_LOCK_WAIT"         env-default:"10s"`
}

// ServerConfig holds settings of the local daemon.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"MEDPASS_SERVER_ADDR"             env-default:"127.0.0.1:8787"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"MEDPASS_SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"MEDPASS_SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MEDPASS_SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// AuthConfig holds settings of PIN unlock tokens. An empty JWTSecret makes
// the daemon generate a random one per run.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"    env:"MEDPASS_AUTH_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl"     env:"MEDPASS_AUTH_TOKEN_TTL"     env-default:"15m"`
	UnlockRate   int           `yaml:"unlock_rate"   env:"MEDPASS_AUTH_UNLOCK_RATE"   env-default:"5"`
	UnlockWindow time.Duration `yaml:"unlock_window" env:"MEDPASS_AUTH_UNLOCK_WINDOW" env-default:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"MEDPASS_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"MEDPASS_LOG_FORMAT" env-default:"text"`
}
