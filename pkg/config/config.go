package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GULFER"

// Config holds runtime configuration for the backend.
type Config struct {
	Port          string
	DB            DBConfig
	Storage       StorageConfig
	AutosaveDelay time.Duration
	Backup        BackupConfig
	LogLevel      string
	LogFormat     string
}

// DBConfig selects the local persistence engine.
type DBConfig struct {
	Driver string // "bolt" or "sqlite"
	Path   string
}

// StorageConfig bounds the read-back verification retries.
type StorageConfig struct {
	Retries    int
	RetryDelay time.Duration
}

// BackupConfig drives the scheduled round export.
type BackupConfig struct {
	Enabled  bool
	CronSpec string // e.g. "0 3 * * *" (server local time)
	Dir      string
}

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", DriverBolt)
	v.SetDefault("DB_PATH", "data/gulfer.db")
	v.SetDefault("STORAGE_RETRIES", 3)
	v.SetDefault("STORAGE_RETRY_DELAY", "50ms")
	v.SetDefault("AUTOSAVE_DELAY", "750ms")
	v.SetDefault("BACKUP_ENABLED", false)
	v.SetDefault("BACKUP_CRON", "0 3 * * *")
	v.SetDefault("BACKUP_DIR", "data/backups")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads configuration from GULFER_* environment variables (optionally
// seeded from a .env file) with sensible defaults. Every call reads the
// environment again so it can be used for reloads.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	// Log settings are shared with the other services and carry no prefix.
	if err := v.BindEnv("LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("LOG_FORMAT", "LOG_FORMAT"); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port: v.GetString("PORT"),
		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			Path:   v.GetString("DB_PATH"),
		},
		Storage: StorageConfig{
			Retries:    v.GetInt("STORAGE_RETRIES"),
			RetryDelay: v.GetDuration("STORAGE_RETRY_DELAY"),
		},
		AutosaveDelay: v.GetDuration("AUTOSAVE_DELAY"),
		Backup: BackupConfig{
			Enabled:  v.GetBool("BACKUP_ENABLED"),
			CronSpec: v.GetString("BACKUP_CRON"),
			Dir:      v.GetString("BACKUP_DIR"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("unsupported %s_DB_DRIVER %q (want %s or %s)", envPrefix, c.DB.Driver, DriverBolt, DriverSQLite)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("%s_DB_PATH must not be empty", envPrefix)
	}
	if c.Storage.Retries <= 0 {
		c.Storage.Retries = 3
	}
	if c.Storage.RetryDelay <= 0 {
		c.Storage.RetryDelay = 50 * time.Millisecond
	}
	if c.AutosaveDelay <= 0 {
		c.AutosaveDelay = 750 * time.Millisecond
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
