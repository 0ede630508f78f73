package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.MaxRows != DefaultMaxRows {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
listen: ":9000"
timezone: Europe/Stockholm
max_rows: 0
feeds:
  - url: " https://example.com/a.ics "
    server_id: s1
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.MaxRows != DefaultMaxRows || cfg.ExportWeeks != DefaultExportWeeks {
		t.Errorf("normalize failed: %+v", cfg)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].ID != "feed-1" || cfg.Feeds[0].URL != "https://example.com/a.ics" {
		t.Errorf("feeds = %+v", cfg.Feeds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	loc, _ := cfg.Location()
	if loc.String() != "Europe/Stockholm" {
		t.Errorf("Location = %s", loc)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Feeds = append(cfg.Feeds, FeedConfig{ID: "main", URL: "https://example.com/cal.ics"})
	cfg.PublicURL = "http://viewer.local/"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".gameweek-config-*.tmp")); len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Feeds) != 1 || got.Feeds[0].ID != "main" {
		t.Errorf("feeds = %+v", got.Feeds)
	}
	if got.PublicURL != "http://viewer.local" {
		t.Errorf("PublicURL = %q", got.PublicURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"bad ttl", func(c *Config) { c.SessionTTL = "forever" }, false},
		{"negative ttl", func(c *Config) { c.SessionTTL = "-1h" }, false},
		{"duplicate feed", func(c *Config) {
			c.Feeds = []FeedConfig{{ID: "a", URL: "http://x"}, {ID: "a", URL: "http://y"}}
		}, false},
		{"feed without url", func(c *Config) { c.Feeds = []FeedConfig{{ID: "a"}} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}

func TestSessionDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTTL = "90m"
	d, err := cfg.SessionDuration()
	if err != nil || d != 90*time.Minute {
		t.Errorf("SessionDuration = %v, %v", d, err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GAMEWEEK_LISTEN", ":7000")
	t.Setenv("GAMEWEEK_LOG_LEVEL", "debug")
	t.Setenv("GAMEWEEK_TIMEZONE", "")

	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Tokyo"
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Listen != ":7000" || cfg.LogLevel != "debug" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("empty env var should not clear Timezone, got %q", cfg.Timezone)
	}
}
