package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the local event store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// StoreConfig bounds every event store call.
type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OAuthConfig enables client-credentials authentication against the remote.
// When ClientID is empty the remote client falls back to a bearer token.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
}

// RemoteConfig holds settings for the remote event service.
type RemoteConfig struct {
	// BaseURL is the root URL of the remote service. Empty disables sync.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// UserID scopes uploads and downloads on the remote.
	UserID int `mapstructure:"user_id" yaml:"user_id"`

	// Timeout bounds each remote call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// DownloadLimit truncates the downloaded set; 0 means unlimited.
	DownloadLimit int `mapstructure:"download_limit" yaml:"download_limit"`

	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// PlaceholderDate and PlaceholderTime fill imported rows, since the
	// remote schema carries no structured date or time.
	PlaceholderDate string `mapstructure:"placeholder_date" yaml:"placeholder_date"`
	PlaceholderTime string `mapstructure:"placeholder_time" yaml:"placeholder_time"`

	OAuth OAuthConfig `mapstructure:"oauth" yaml:"oauth"`
}

// SyncConfig controls background synchronization.
type SyncConfig struct {
	// Schedule is a cron spec (e.g. "@every 15m"). Empty disables
	// periodic passes; on-demand passes still work.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// TimerConfig selects and tunes the persistent timer backend.
type TimerConfig struct {
	// Backend is "sqlite" or "redis".
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RedisAddr    string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisKey     string        `mapstructure:"redis_key" yaml:"redis_key"`
}

// DeliveryConfig holds reminder delivery preferences.
type DeliveryConfig struct {
	// SMSEnabled mirrors the user's "send SMS reminders" preference.
	SMSEnabled bool `mapstructure:"sms_enabled" yaml:"sms_enabled"`

	// Phone and GatewayDomain form the email-to-SMS address,
	// e.g. 5555555555@txt.example.net.
	Phone         string `mapstructure:"phone" yaml:"phone"`
	GatewayDomain string `mapstructure:"gateway_domain" yaml:"gateway_domain"`

	SMTPAddr string `mapstructure:"smtp_addr" yaml:"smtp_addr"`
	SMTPFrom string `mapstructure:"smtp_from" yaml:"smtp_from"`
	SMTPUser string `mapstructure:"smtp_user" yaml:"smtp_user"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HTTPConfig holds the daemon's health and metrics listener.
type HTTPConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`

	// Output is "stderr", "stdout" or a file path. The TUI always logs to
	// a file so it does not draw over the screen.
	Output string `mapstructure:"output" yaml:"output"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Timezone string         `mapstructure:"timezone" yaml:"timezone"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Timer    TimerConfig    `mapstructure:"timer" yaml:"timer"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// Location resolves the configured timezone, falling back to time.Local.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultConfigDir returns ~/.config/reminders.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "reminders")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/reminders/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// configDefaults is the single source of default values; keys are viper
// paths.
func configDefaults() map[string]any {
	return map[string]any{
		"database.path":           filepath.Join(DefaultConfigDir(), "events.db"),
		"timezone":                "Local",
		"store.timeout":           5 * time.Second,
		"remote.base_url":         "",
		"remote.user_id":          1,
		"remote.timeout":          10 * time.Second,
		"remote.download_limit":   5,
		"remote.max_retries":      3,
		"remote.placeholder_date": "2025-01-01",
		"remote.placeholder_time": "12:00",
		"remote.oauth.client_id":  "",
		"remote.oauth.token_url":  "",
		"sync.schedule":           "@every 15m",
		"timer.backend":           "sqlite",
		"timer.poll_interval":     time.Second,
		"timer.redis_addr":        "localhost:6379",
		"timer.redis_key":         "reminders:timers",
		"delivery.sms_enabled":    false,
		"delivery.phone":          "",
		"delivery.gateway_domain": "",
		"delivery.smtp_addr":      "",
		"delivery.smtp_from":      "",
		"delivery.smtp_user":      "",
		"delivery.timeout":        15 * time.Second,
		"http.listen":             "127.0.0.1:8089",
		"log.level":               "info",
		"log.format":              "console",
		"log.output":              "stderr",
	}
}

// newViper returns a viper instance with defaults and REMINDERS_* env
// overrides applied.
func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range configDefaults() {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix("reminders")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	cfg := &AppConfig{}
	if err := newViper().Unmarshal(cfg); err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration with
// environment overrides applied.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Store.Timeout <= 0 {
		cfg.Store.Timeout = 5 * time.Second
	}
	if cfg.Timer.PollInterval <= 0 {
		cfg.Timer.PollInterval = time.Second
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("timezone", cfg.Timezone)
	v.Set("store", cfg.Store)
	v.Set("remote", cfg.Remote)
	v.Set("sync", cfg.Sync)
	v.Set("timer", cfg.Timer)
	v.Set("delivery", cfg.Delivery)
	v.Set("http", cfg.HTTP)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
