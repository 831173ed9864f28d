package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/runnerr0/bounceguard/internal/btp"
	"github.com/runnerr0/bounceguard/internal/model"
)

// Default config file path.
const DefaultConfigPath = "~/.config/bounceguard/config.yaml"

// Config holds all bounceguard configuration.
type Config struct {
	BounceTracking BounceTrackingConfig `yaml:"bounce_tracking"`
	Storage        StorageConfig        `yaml:"storage"`
	Logging        LoggingConfig        `yaml:"logging"`
	Allowlist      AllowlistConfig      `yaml:"allowlist"`
}

type BounceTrackingConfig struct {
	Mode                    string   `yaml:"mode"`
	ClientRedirectTimeoutMs int      `yaml:"client_redirect_timeout_ms"`
	StateWriteLookbackMs    int      `yaml:"state_write_lookback_ms"`
	RetentionDays           int      `yaml:"retention_days"`
	PurgeIntervalHours      int      `yaml:"purge_interval_hours"`
	PurgeLogSize            int      `yaml:"purge_log_size"`
	PurgeConcurrency        int      `yaml:"purge_concurrency"`
	PurgeRatePerSecond      float64  `yaml:"purge_rate_per_second"`
	EventBuffer             int      `yaml:"event_buffer"`
	PurgeCommand            []string `yaml:"purge_command"`
	PurgeCommandTimeoutSecs int      `yaml:"purge_command_timeout_seconds"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AllowlistConfig lists sites that are never purged, on top of the rules
// seeded in the database.
type AllowlistConfig struct {
	Domains []string `yaml:"domains"`
	Regex   []string `yaml:"regex"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML or
// fails validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// ExpandPath is expandPath for callers outside the package.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// Validate checks every field that has a restricted range.
func (c *Config) Validate() error {
	var errs []error
	bt := c.BounceTracking

	if _, err := model.ParseMode(bt.Mode); err != nil {
		errs = append(errs, fmt.Errorf("bounce_tracking.mode: %w", err))
	}
	positive := []struct {
		name  string
		value int
	}{
		{"bounce_tracking.client_redirect_timeout_ms", bt.ClientRedirectTimeoutMs},
		{"bounce_tracking.state_write_lookback_ms", bt.StateWriteLookbackMs},
		{"bounce_tracking.retention_days", bt.RetentionDays},
		{"bounce_tracking.purge_interval_hours", bt.PurgeIntervalHours},
		{"bounce_tracking.purge_log_size", bt.PurgeLogSize},
		{"bounce_tracking.purge_concurrency", bt.PurgeConcurrency},
		{"bounce_tracking.event_buffer", bt.EventBuffer},
	}
	for _, f := range positive {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if bt.PurgeRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("bounce_tracking.purge_rate_per_second must not be negative"))
	}
	if bt.PurgeCommandTimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("bounce_tracking.purge_command_timeout_seconds must not be negative"))
	}

	switch strings.ToLower(c.Storage.SQLiteJournalMode) {
	case "wal", "delete", "truncate", "persist", "memory", "off":
	default:
		errs = append(errs, fmt.Errorf("storage.sqlite_journal_mode: unknown mode %q", c.Storage.SQLiteJournalMode))
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("logging rotation limits must not be negative"))
	}

	for _, re := range c.Allowlist.Regex {
		if _, err := regexp.Compile(re); err != nil {
			errs = append(errs, fmt.Errorf("allowlist.regex %q: %w", re, err))
		}
	}
	return errors.Join(errs...)
}

// Settings converts the bounce_tracking section. The config must have
// passed Validate.
func (c *Config) Settings() btp.Settings {
	bt := c.BounceTracking
	mode, _ := model.ParseMode(bt.Mode)

	s := btp.DefaultSettings()
	s.Mode = mode
	s.ClientRedirectTimeout = time.Duration(bt.ClientRedirectTimeoutMs) * time.Millisecond
	s.StateWriteLookback = time.Duration(bt.StateWriteLookbackMs) * time.Millisecond
	s.RetentionWindow = time.Duration(bt.RetentionDays) * 24 * time.Hour
	s.PurgeCycleInterval = time.Duration(bt.PurgeIntervalHours) * time.Hour
	s.PurgeLogSize = bt.PurgeLogSize
	s.PurgeConcurrency = bt.PurgeConcurrency
	s.PurgeRatePerSecond = bt.PurgeRatePerSecond
	s.EventBuffer = bt.EventBuffer
	return s
}

// DatabasePath returns the expanded location of the SQLite file.
func (c *Config) DatabasePath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}
