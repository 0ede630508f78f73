package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultTimezone    = "UTC"
	DefaultDataPath    = "./var/gameweek.bdb"
	DefaultCacheDir    = "./var/feed-cache"
	DefaultSessionTTL  = "24h"
	DefaultMaxRows     = 3
	DefaultExportWeeks = 8
	DefaultMaintenance = "*/15 * * * *"
)

// FeedConfig describes an ICS subscription imported into the event list.
type FeedConfig struct {
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// ServerID binds imported events to one server; empty means all.
	ServerID string `yaml:"server_id,omitempty" json:"server_id,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the viewer and admin API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone decides which calendar day "today" is (e.g. "Europe/Stockholm").
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataPath is the bbolt database file.
	DataPath string `yaml:"data_path" json:"data_path"`

	// CacheDir keeps the last good body of every feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// SessionTTL is a Go duration string such as "12h".
	SessionTTL string `yaml:"session_ttl" json:"session_ttl"`

	// MaxRows caps the packed rows of a week view.
	MaxRows int `yaml:"max_rows" json:"max_rows"`

	// ExportWeeks is how far ahead the ICS export reaches.
	ExportWeeks int `yaml:"export_weeks" json:"export_weeks"`

	// Maintenance is the cron spec for session pruning and feed import.
	Maintenance string `yaml:"maintenance" json:"maintenance"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// PublicURL is where the viewer is reachable, used by snapshots.
	PublicURL string `yaml:"public_url,omitempty" json:"public_url,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      DefaultListen,
		Timezone:    DefaultTimezone,
		LogLevel:    "info",
		DataPath:    DefaultDataPath,
		CacheDir:    DefaultCacheDir,
		SessionTTL:  DefaultSessionTTL,
		MaxRows:     DefaultMaxRows,
		ExportWeeks: DefaultExportWeeks,
		Maintenance: DefaultMaintenance,
		Feeds:       []FeedConfig{},
	}
}

// Normalize fills zero values with defaults so older or partial files
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.SessionTTL == "" {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.ExportWeeks <= 0 {
		c.ExportWeeks = DefaultExportWeeks
	}
	if c.Maintenance == "" {
		c.Maintenance = DefaultMaintenance
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		c.Feeds[i].URL = strings.TrimSpace(c.Feeds[i].URL)
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = fmt.Sprintf("feed-%d", i+1)
		}
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SessionDuration(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feed %q: url is empty", f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("feed %q: duplicate id", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SessionDuration parses SessionTTL.
func (c *Config) SessionDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("session_ttl %q: %w", c.SessionTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("session_ttl %q: must be positive", c.SessionTTL)
	}
	return d, nil
}

// envOverrides lists the settings a deployment may override without
// editing the file. Unset variables leave the file value alone.
type envOverrides struct {
	Listen   string `env:"GAMEWEEK_LISTEN"`
	Timezone string `env:"GAMEWEEK_TIMEZONE"`
	DataPath string `env:"GAMEWEEK_DATA_PATH"`
	LogLevel string `env:"GAMEWEEK_LOG_LEVEL"`
	CacheDir string `env:"GAMEWEEK_CACHE_DIR"`
}

// ApplyEnv overlays GAMEWEEK_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, o.Listen)
	set(&c.Timezone, o.Timezone)
	set(&c.DataPath, o.DataPath)
	set(&c.LogLevel, o.LogLevel)
	set(&c.CacheDir, o.CacheDir)
	return nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults (0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".gameweek-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
