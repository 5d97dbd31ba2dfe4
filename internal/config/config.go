// Package config loads the runtime configuration from the environment
// (optionally seeded from a .env file) and an optional YAML file for the
// event-volume thresholds and the active check list.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/counselops/reconcile/internal/check"
	"github.com/counselops/reconcile/internal/store"
)

// Config is the full runtime configuration.
type Config struct {
	// Verbosity is the console log level (0-3).
	Verbosity int

	// LogDir receives the report log and the per-check result CSVs.
	LogDir string

	// Checks are the checks to run, in order. Empty means all.
	Checks []string

	// StaleAfter is the age at which an unanswered session counts as
	// stale.
	StaleAfter time.Duration

	// Thresholds are the event-volume expectations per event kind.
	Thresholds check.EventThresholds

	Identity IdentityConfig
	Postgres store.PostgresConfig
	Mongo    store.MongoConfig
	Chat     ChatConfig
	Webhook  WebhookConfig
	Audit    AuditConfig
}

// IdentityConfig connects the identity provider admin API.
type IdentityConfig struct {
	BaseURL  string
	Realm    string
	ClientID string
	Username string
	Password string
}

// ChatConfig connects the chat service API.
type ChatConfig struct {
	BaseURL  string
	Username string
	Password string

	// RequestsPerSecond throttles chat API calls; zero disables.
	RequestsPerSecond float64

	// GeneralRoomID is the chat service's default channel, excluded
	// from repair.
	GeneralRoomID string
}

// WebhookConfig is the optional notification webhook; empty URL
// disables it.
type WebhookConfig struct {
	URL string
}

// AuditConfig is the optional audit index; empty base URL disables it.
type AuditConfig struct {
	BaseURL     string
	IndexPrefix string
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Verbosity:  1,
		LogDir:     "log",
		StaleAfter: check.DefaultStaleAfter,
		Thresholds: check.DefaultEventThresholds(),
		Identity: IdentityConfig{
			Realm:    "master",
			ClientID: "admin-cli",
		},
		Postgres: store.DefaultPostgresConfig(),
		Chat: ChatConfig{
			RequestsPerSecond: 10,
			GeneralRoomID:     "GENERAL",
		},
		Audit: AuditConfig{
			IndexPrefix: "reconcile-audit",
		},
	}
}

// Load builds the configuration: defaults, then a .env file when one
// exists, then the environment, then the YAML file when a path is
// given. The result is validated.
func Load(yamlPath string) (Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return cfg, err
	}
	if yamlPath != "" {
		if err := cfg.applyFile(yamlPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - RECONCILE_VERBOSITY: console log level 0-3 (default: 1)
//   - RECONCILE_LOG_DIR: report and result file directory (default: log)
//   - RECONCILE_CHECKS: comma-separated check names (default: all)
//   - RECONCILE_STALE_AFTER_DAYS: stale session age in days (default: 14)
//   - RECONCILE_IDENTITY_URL, _REALM, _CLIENT_ID, _USER, _PASSWORD
//   - RECONCILE_PG_HOST, _PORT, _DATABASE, _USER, _PASSWORD, _SSLMODE, _MAX_CONNS
//   - RECONCILE_MONGO_URI, _DATABASE, _STATS_DATABASE
//   - RECONCILE_CHAT_URL, _USER, _PASSWORD, _RATE_LIMIT, _GENERAL_ROOM
//   - RECONCILE_WEBHOOK_URL (optional)
//   - RECONCILE_AUDIT_URL, _AUDIT_INDEX_PREFIX (optional)
func FromEnv() (Config, error) {
	cfg := Default()

	if err := parseEnvInt("RECONCILE_VERBOSITY", &cfg.Verbosity); err != nil {
		return cfg, err
	}
	parseEnvString("RECONCILE_LOG_DIR", &cfg.LogDir)

	if v := os.Getenv("RECONCILE_CHECKS"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Checks = append(cfg.Checks, name)
			}
		}
	}

	staleDays := int(cfg.StaleAfter / (24 * time.Hour))
	if err := parseEnvInt("RECONCILE_STALE_AFTER_DAYS", &staleDays); err != nil {
		return cfg, err
	}
	cfg.StaleAfter = time.Duration(staleDays) * 24 * time.Hour

	parseEnvString("RECONCILE_IDENTITY_URL", &cfg.Identity.BaseURL)
	parseEnvString("RECONCILE_IDENTITY_REALM", &cfg.Identity.Realm)
	parseEnvString("RECONCILE_IDENTITY_CLIENT_ID", &cfg.Identity.ClientID)
	parseEnvString("RECONCILE_IDENTITY_USER", &cfg.Identity.Username)
	parseEnvString("RECONCILE_IDENTITY_PASSWORD", &cfg.Identity.Password)

	parseEnvString("RECONCILE_PG_HOST", &cfg.Postgres.Host)
	if err := parseEnvInt("RECONCILE_PG_PORT", &cfg.Postgres.Port); err != nil {
		return cfg, err
	}
	parseEnvString("RECONCILE_PG_DATABASE", &cfg.Postgres.Database)
	parseEnvString("RECONCILE_PG_USER", &cfg.Postgres.User)
	parseEnvString("RECONCILE_PG_PASSWORD", &cfg.Postgres.Password)
	parseEnvString("RECONCILE_PG_SSLMODE", &cfg.Postgres.SSLMode)
	maxConns := int(cfg.Postgres.MaxConns)
	if err := parseEnvInt("RECONCILE_PG_MAX_CONNS", &maxConns); err != nil {
		return cfg, err
	}
	cfg.Postgres.MaxConns = int32(maxConns)

	parseEnvString("RECONCILE_MONGO_URI", &cfg.Mongo.URI)
	parseEnvString("RECONCILE_MONGO_DATABASE", &cfg.Mongo.Database)
	parseEnvString("RECONCILE_MONGO_STATS_DATABASE", &cfg.Mongo.StatisticsDatabase)

	parseEnvString("RECONCILE_CHAT_URL", &cfg.Chat.BaseURL)
	parseEnvString("RECONCILE_CHAT_USER", &cfg.Chat.Username)
	parseEnvString("RECONCILE_CHAT_PASSWORD", &cfg.Chat.Password)
	if err := parseEnvFloat("RECONCILE_CHAT_RATE_LIMIT", &cfg.Chat.RequestsPerSecond); err != nil {
		return cfg, err
	}
	parseEnvString("RECONCILE_CHAT_GENERAL_ROOM", &cfg.Chat.GeneralRoomID)

	parseEnvString("RECONCILE_WEBHOOK_URL", &cfg.Webhook.URL)
	parseEnvString("RECONCILE_AUDIT_URL", &cfg.Audit.BaseURL)
	parseEnvString("RECONCILE_AUDIT_INDEX_PREFIX", &cfg.Audit.IndexPrefix)

	return cfg, nil
}

// fileConfig is the YAML file shape. Only what varies per installation
// lives here; credentials stay in the environment.
type fileConfig struct {
	Checks     []string                  `yaml:"checks"`
	Thresholds map[string]dayThresholds  `yaml:"thresholds"`
	StaleDays  *int                      `yaml:"stale_after_days"`
	Chat       struct {
		GeneralRoomID string `yaml:"general_room_id"`
	} `yaml:"chat"`
}

type dayThresholds map[int]map[int]int

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if len(fc.Checks) > 0 {
		c.Checks = fc.Checks
	}
	if fc.StaleDays != nil {
		c.StaleAfter = time.Duration(*fc.StaleDays) * 24 * time.Hour
	}
	if fc.Chat.GeneralRoomID != "" {
		c.Chat.GeneralRoomID = fc.Chat.GeneralRoomID
	}

	// Threshold tables replace the defaults per kind, not per slot.
	for kind, days := range fc.Thresholds {
		table := make(check.DayThresholds, len(days))
		for day, hours := range days {
			ht := make(check.HourThresholds, len(hours))
			for hour, min := range hours {
				ht[hour] = min
			}
			table[day] = ht
		}
		c.Thresholds[kind] = table
	}
	return nil
}

// Validate checks the configuration for the values every run needs.
func (c Config) Validate() error {
	if c.Verbosity < 0 || c.Verbosity > 3 {
		return fmt.Errorf("verbosity must be between 0 and 3 (got %d)", c.Verbosity)
	}
	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity provider URL is not configured (RECONCILE_IDENTITY_URL)")
	}
	if c.Identity.Username == "" || c.Identity.Password == "" {
		return fmt.Errorf("identity provider admin credentials are not configured")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is not configured (RECONCILE_MONGO_URI)")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database is not configured (RECONCILE_MONGO_DATABASE)")
	}
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("chat service URL is not configured (RECONCILE_CHAT_URL)")
	}
	if c.Chat.Username == "" || c.Chat.Password == "" {
		return fmt.Errorf("chat technical account credentials are not configured")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale session age must be positive (got %s)", c.StaleAfter)
	}
	for kind, days := range c.Thresholds {
		for day := range days {
			if day < 0 || day > 6 {
				return fmt.Errorf("threshold for %s uses day %d, must be 0 (Sunday) to 6 (Saturday)", kind, day)
			}
			for hour := range days[day] {
				if hour < 0 || hour > 23 {
					return fmt.Errorf("threshold for %s uses hour %d, must be 0 to 23", kind, hour)
				}
			}
		}
	}
	return nil
}

// parseEnvInt parses an int from an environment variable; an unset
// variable keeps the default.
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable; an unset
// variable keeps the default.
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString reads a string from an environment variable; an unset
// variable keeps the default.
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}
