// config/config.go

// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseDriver string   `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	ListenAddr     string   `env:"LISTEN_ADDR" envDefault:":5200"`
	GatewayToken   string   `env:"GATEWAY_SERVICE_TOKEN"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	ActionCooldown   time.Duration `env:"ACTION_COOLDOWN" envDefault:"10s"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	LeaderboardLimit int           `env:"LEADERBOARD_LIMIT" envDefault:"10"`

	// Snapshots are disabled while SnapshotInterval is zero.
	SnapshotInterval  time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"0s"`
	SnapshotBucket    string        `env:"SNAPSHOT_BUCKET"`
	CloudflareAccount string        `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string        `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string        `env:"R2_ACCESS_KEY_SECRET"`

	ProfileSyncURL      string        `env:"PROFILE_SYNC_URL"`
	ProfileSyncToken    string        `env:"PROFILE_SYNC_TOKEN"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`
	HTTPClientTimeout   time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("⚠️  No .env file found, reading environment variables directly")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if strings.TrimSpace(c.GatewayToken) == "" {
		errs = append(errs, errors.New("GATEWAY_SERVICE_TOKEN environment variable not set"))
	}
	if c.ActionCooldown <= 0 {
		errs = append(errs, errors.New("ACTION_COOLDOWN must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.LeaderboardLimit <= 0 {
		c.LeaderboardLimit = 10
	}
	if c.SnapshotInterval < 0 {
		errs = append(errs, errors.New("SNAPSHOT_INTERVAL must not be negative"))
	}
	if c.ProfileSyncURL != "" && c.ProfileSyncToken == "" {
		errs = append(errs, errors.New("PROFILE_SYNC_TOKEN is required when PROFILE_SYNC_URL is set"))
	}
	for i, origin := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return errors.Join(errs...)
}

// SnapshotUploadsEnabled reports whether snapshots should be archived to R2.
func (c *Config) SnapshotUploadsEnabled() bool {
	return c.SnapshotBucket != "" && c.CloudflareAccount != ""
}

func (c *Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
