// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath           = "config.toml"
	DefaultHTTPAddr             = ":9991"
	DefaultJWTExpiresIn         = "24h"
	DefaultPGHost               = "127.0.0.1"
	DefaultPGPort               = 5432
	DefaultPGUser               = "postgres"
	DefaultPGDatabase           = "tulip"
	DefaultPGSSLMode            = "disable"
	DefaultRealmName            = "tulip"
	DefaultRealmHost            = "localhost:9991"
	DefaultLongpollSeconds      = 90
	DefaultQueueGCSeconds       = 600
	DefaultWebhookSeconds       = 10
	DefaultWebhookMaxAttempts   = 5
	DefaultWorkerCount          = 4
	DefaultPresenceIdleSeconds  = 140
	DefaultCleanupCron          = "@daily"
	DefaultPresenceSweepCron    = "@every 1m"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Realm    RealmConfig    `toml:"realm"`
	Events   EventsConfig   `toml:"events"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Agents   AgentsConfig   `toml:"agents"`
	Jobs     JobsConfig     `toml:"jobs"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdminConfig holds the initial admin account (email, password, full name).
type AdminConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	FullName string `toml:"full_name"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 24h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// RealmConfig holds the default realm created on first start.
type RealmConfig struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
}

// EventsConfig holds client event queue tuning.
type EventsConfig struct {
	LongpollSeconds int `toml:"longpoll_seconds"`
	QueueGCSeconds  int `toml:"queue_gc_seconds"`
}

// LongpollTimeout returns the long-poll park timeout.
func (c EventsConfig) LongpollTimeout() time.Duration {
	return time.Duration(c.LongpollSeconds) * time.Second
}

// QueueGCTimeout returns the idle timeout after which a client event queue is dropped.
func (c EventsConfig) QueueGCTimeout() time.Duration {
	return time.Duration(c.QueueGCSeconds) * time.Second
}

// WebhookConfig holds outgoing bot webhook delivery tuning.
type WebhookConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	MaxAttempts    int `toml:"max_attempts"`
	Workers        int `toml:"workers"`
}

// Timeout returns the per-request webhook timeout.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AgentsConfig controls agent self-registration.
type AgentsConfig struct {
	AllowRegistration bool   `toml:"allow_registration"`
	RealmName         string `toml:"realm_name"`
}

// JobsConfig holds cron patterns for background maintenance jobs.
type JobsConfig struct {
	PuppetHandlerCleanupCron string `toml:"puppet_handler_cleanup_cron"`
	PresenceSweepCron        string `toml:"presence_sweep_cron"`
	PresenceIdleSeconds      int    `toml:"presence_idle_seconds"`
}

// PresenceIdleTimeout returns how long a bot may go without a heartbeat
// before the sweep marks it disconnected.
func (c JobsConfig) PresenceIdleTimeout() time.Duration {
	return time.Duration(c.PresenceIdleSeconds) * time.Second
}

// JWTExpiry parses Auth.JWTExpiresIn, falling back to the default on error.
func (c AuthConfig) JWTExpiry() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultJWTExpiresIn)
	}
	return d
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultHTTPAddr
	}
	if cfg.Auth.JWTExpiresIn == "" {
		cfg.Auth.JWTExpiresIn = DefaultJWTExpiresIn
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPGHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPGPort
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = DefaultPGUser
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = DefaultPGDatabase
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = DefaultPGSSLMode
	}
	if cfg.Realm.Name == "" {
		cfg.Realm.Name = DefaultRealmName
	}
	if cfg.Realm.Host == "" {
		cfg.Realm.Host = DefaultRealmHost
	}
	if cfg.Events.LongpollSeconds <= 0 {
		cfg.Events.LongpollSeconds = DefaultLongpollSeconds
	}
	if cfg.Events.QueueGCSeconds <= 0 {
		cfg.Events.QueueGCSeconds = DefaultQueueGCSeconds
	}
	if cfg.Webhook.TimeoutSeconds <= 0 {
		cfg.Webhook.TimeoutSeconds = DefaultWebhookSeconds
	}
	if cfg.Webhook.MaxAttempts <= 0 {
		cfg.Webhook.MaxAttempts = DefaultWebhookMaxAttempts
	}
	if cfg.Webhook.Workers <= 0 {
		cfg.Webhook.Workers = DefaultWorkerCount
	}
	if cfg.Jobs.PuppetHandlerCleanupCron == "" {
		cfg.Jobs.PuppetHandlerCleanupCron = DefaultCleanupCron
	}
	if cfg.Jobs.PresenceSweepCron == "" {
		cfg.Jobs.PresenceSweepCron = DefaultPresenceSweepCron
	}
	if cfg.Jobs.PresenceIdleSeconds <= 0 {
		cfg.Jobs.PresenceIdleSeconds = DefaultPresenceIdleSeconds
	}
}
