package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tablog/config.yaml"

// Config holds all tablog configuration.
type Config struct {
	Retention RetentionConfig `yaml:"retention"`
	Capture   CaptureConfig   `yaml:"capture"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Queue     QueueConfig     `yaml:"queue"`
	Storage   StorageConfig   `yaml:"storage"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Logging   LoggingConfig   `yaml:"logging"`
	Query     QueryConfig     `yaml:"query"`
}

type RetentionConfig struct {
	Days                       int `yaml:"days"`
	MaxEntries                 int `yaml:"max_entries"`
	WatermarkPercent           int `yaml:"watermark_percent"`
	MaintenanceIntervalMinutes int `yaml:"maintenance_interval_minutes"`
}

type CaptureConfig struct {
	EnableLogging           bool     `yaml:"enable_logging"`
	LogIncognito            bool     `yaml:"log_incognito"`
	TrackTime               bool     `yaml:"track_time"`
	ExcludedSites           []string `yaml:"excluded_sites"`
	SkipURLPrefixes         []string `yaml:"skip_url_prefixes"`
	ExcludeSensitiveDomains bool     `yaml:"exclude_sensitive_domains"`
}

type DedupeConfig struct {
	CooldownMS       int  `yaml:"cooldown_ms"`
	OpenedCooldownMS int  `yaml:"opened_cooldown_ms"`
	OpenLoadWindowMS int  `yaml:"open_load_window_ms"`
	DedupeNavigated  bool `yaml:"dedupe_navigated"`
	MaxTrackedTabs   int  `yaml:"max_tracked_tabs"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type DaemonConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxRequestSize int    `yaml:"max_request_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	Pretty   bool   `yaml:"pretty"`
	AuditLog bool   `yaml:"audit_log"`
}

type QueryConfig struct {
	PageSize   int `yaml:"page_size"`
	TopDomains int `yaml:"top_domains"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
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
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Retention.MaxEntries < 0 {
		return fmt.Errorf("retention.max_entries must not be negative")
	}
	if c.Retention.WatermarkPercent < 1 || c.Retention.WatermarkPercent > 100 {
		return fmt.Errorf("retention.watermark_percent must be between 1 and 100, got %d", c.Retention.WatermarkPercent)
	}
	if c.Dedupe.CooldownMS < 0 || c.Dedupe.OpenedCooldownMS < 0 || c.Dedupe.OpenLoadWindowMS < 0 {
		return fmt.Errorf("dedupe windows must not be negative")
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port out of range: %d", c.Daemon.Port)
	}
	return nil
}

// DBPath returns the expanded path of the SQLite database file.
func (c *Config) DBPath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// LogPath returns the expanded log file path, relative paths resolving
// under the storage directory. Empty means log to stderr only.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File == "" {
		return "", nil
	}
	p, err := expandPath(c.Logging.File)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p), nil
}

// DaemonAddr returns host:port for the local daemon.
func (c *Config) DaemonAddr() string {
	return net.JoinHostPort(c.Daemon.Host, strconv.Itoa(c.Daemon.Port))
}

// MaintenanceInterval returns the period between maintenance runs.
func (c *Config) MaintenanceInterval() time.Duration {
	if c.Retention.MaintenanceIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Retention.MaintenanceIntervalMinutes) * time.Minute
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
