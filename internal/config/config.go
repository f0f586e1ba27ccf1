package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Remote   RemoteConfig   `yaml:"remote"`
	Assets   AssetsConfig   `yaml:"assets"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Notify   NotifyConfig   `yaml:"notify"`
	Events   EventsConfig   `yaml:"events"`
}

// CacheConfig locates the writable cache file and the bundled default.
type CacheConfig struct {
	Path        string `yaml:"path"`
	DefaultPath string `yaml:"default_path"`
	Watch       bool   `yaml:"watch"`
}

// RemoteConfig selects the remote document store.
type RemoteConfig struct {
	Driver             string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                string `yaml:"dsn"`
	PuzzlesCollection  string `yaml:"puzzles_collection"`
	HexGridsCollection string `yaml:"hexgrids_collection"`
}

// AssetsConfig configures signed asset URLs.
type AssetsConfig struct {
	Root          string `yaml:"root"`
	BaseURL       string `yaml:"base_url"`
	ImagesBucket  string `yaml:"images_bucket"`
	PDFBucket     string `yaml:"pdf_bucket"`
	SigningSecret string `yaml:"signing_secret"` // secret name, resolved via the secrets provider
	TTL           string `yaml:"ttl"`
}

// ParseTTL returns the signed URL lifetime as time.Duration.
func (a AssetsConfig) ParseTTL() time.Duration {
	d, err := time.ParseDuration(a.TTL)
	if err != nil || d <= 0 {
		return 60 * time.Minute
	}
	return d
}

// SecretsConfig configures where named secrets are looked up.
type SecretsConfig struct {
	Dir string `yaml:"dir"`
}

// ScheduleConfig configures periodic syncs.
type ScheduleConfig struct {
	SyncInterval string `yaml:"sync_interval"`
}

// ParseSyncInterval returns the sync interval as time.Duration.
func (s ScheduleConfig) ParseSyncInterval() time.Duration {
	d, err := time.ParseDuration(s.SyncInterval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// NotifyConfig configures sync notifications.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// EventsConfig configures the sync event stream.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Path:        "/tmp/data.json",
			DefaultPath: "./data.json",
			Watch:       true,
		},
		Remote: RemoteConfig{
			Driver:             "sqlite",
			DSN:                "./hexarchive.db",
			PuzzlesCollection:  "puzzles",
			HexGridsCollection: "hexgrids",
		},
		Assets: AssetsConfig{
			Root:          "./buckets",
			ImagesBucket:  "hex-archive-images",
			PDFBucket:     "hex-archive",
			SigningSecret: "signing-key",
			TTL:           "60m",
		},
		Schedule: ScheduleConfig{SyncInterval: "6h"},
		Server:   ServerConfig{Port: 8080},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Events: EventsConfig{Topic: "puzzles.synced"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HEXARCHIVE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("HEXARCHIVE_REMOTE_DRIVER"); v != "" {
		cfg.Remote.Driver = v
	}
	if v := os.Getenv("HEXARCHIVE_REMOTE_DSN"); v != "" {
		cfg.Remote.DSN = v
	}
	if v := os.Getenv("HEXARCHIVE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HEXARCHIVE_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = splitList(v)
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	// PORT is set by the hosting platform and wins over the app-specific name.
	for _, name := range []string{"HEXARCHIVE_PORT", "PORT"} {
		if v := os.Getenv(name); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			cfg.Server.Port = port
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
