package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Lookup        LookupConfig        `mapstructure:"lookup"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Events        EventsConfig        `mapstructure:"events"`
	Log           LogConfig           `mapstructure:"log"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BackendConfig points at the REST backend that owns the shop data.
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int           `mapstructure:"burst"`

	MaxResponseSize int64 `mapstructure:"max_response_size"`
}

type LookupConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SchemaConfig struct {
	File string `mapstructure:"file"` // optional override for the built-in entity definitions
}

type EventsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // SQLite database file
	DSN             string `mapstructure:"dsn"`  // PostgreSQL connection string
	BufferSize      int    `mapstructure:"buffer_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	RetentionDays   int    `mapstructure:"retention_days"`
}

// DataSource returns the driver-specific data source name.
func (e EventsConfig) DataSource() string {
	if e.IsSQLite() {
		return e.Path
	}
	return e.DSN
}

// IsSQLite returns true if the driver is sqlite.
func (e EventsConfig) IsSQLite() bool {
	return e.Driver == "" || e.Driver == "sqlite"
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type UploadConfig struct {
	MaxImageSize int64  `mapstructure:"max_image_size"`
	SpoolPath    string `mapstructure:"spool_path"`
}

type NotificationsConfig struct {
	Capacity int `mapstructure:"capacity"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("backend.base_url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_limit", 20.0)
	v.SetDefault("backend.burst", 10)
	v.SetDefault("backend.max_response_size", 32<<20)
	v.SetDefault("lookup.ttl", "5m")
	v.SetDefault("schema.file", "")
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.driver", "sqlite")
	v.SetDefault("events.path", "./data/events.db")
	v.SetDefault("events.dsn", "")
	v.SetDefault("events.buffer_size", 500)
	v.SetDefault("events.flush_interval_ms", 500)
	v.SetDefault("events.retention_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("upload.max_image_size", 16<<20)
	v.SetDefault("upload.spool_path", "./data/uploads")
	v.SetDefault("notifications.capacity", 50)
}

// Load reads app.yaml (if present) and SHANKH_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	setDefaults(v)

	v.SetEnvPrefix("shankh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is required")
	}
	if cfg.Lookup.TTL <= 0 {
		return nil, fmt.Errorf("lookup.ttl must be positive, got %s", cfg.Lookup.TTL)
	}
	return &cfg, nil
}
