package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// DefaultTimezone is the organisational zone bookings are interpreted in.
const DefaultTimezone = "America/New_York"

type Config struct {
	Server struct {
		Port           int    `yaml:"port"`
		PublicURL      string `yaml:"public_url"`
		ReadTimeoutSec int    `yaml:"read_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Authority struct {
		BaseURL         string `yaml:"base_url"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"authority"`

	Booking struct {
		Timezone              string `yaml:"timezone"`
		AutoApproveRegular    bool   `yaml:"auto_approve_regular"`
		AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
		RefreshTokenTTLHours  int    `yaml:"refresh_token_ttl_hours"`
	} `yaml:"booking"`

	Admin struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Email    string `yaml:"email"`
	} `yaml:"admin"`

	Telegram struct {
		BotToken     string  `yaml:"bot_token"`
		AdminChatIDs []int64 `yaml:"admin_chat_ids"`
		Debug        bool    `yaml:"debug"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup BackupConfig `yaml:"backup"`

	Export struct {
		Enabled           bool   `yaml:"enabled"`
		Schedule          string `yaml:"schedule"`
		Path              string `yaml:"path"`
		DataRetentionDays int    `yaml:"data_retention_days"`
	} `yaml:"export"`

	Reminders struct {
		Enabled              bool `yaml:"enabled"`
		HoursBefore          int  `yaml:"hours_before"`
		CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
	} `yaml:"reminders"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		// TrustProxy honours X-Forwarded-For; enable only behind a reverse proxy.
		TrustProxy        bool    `yaml:"trust_proxy"`
	} `yaml:"rate_limit"`

	CatalogPath string `yaml:"catalog_path"`
}

// BackupConfig controls periodic database copies.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path, expanding ${ENV} placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if _, err := time.LoadLocation(cfg.Booking.Timezone); err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/roombook.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = DefaultTimezone
	}
	if c.Authority.BaseURL == "" {
		c.Authority.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Export.Schedule == "" {
		c.Export.Schedule = "1 0 1 * *"
	}
	if c.Reminders.HoursBefore <= 0 {
		c.Reminders.HoursBefore = 24
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "configs/rooms.yaml"
	}
}

// Location returns the organisational time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) AccessTokenTTL() time.Duration {
	if c.Booking.AccessTokenTTLMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Booking.AccessTokenTTLMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	if c.Booking.RefreshTokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Booking.RefreshTokenTTLHours) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Authority.CacheTTLSeconds) * time.Second
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.CheckIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.CheckIntervalMinutes) * time.Minute
}
