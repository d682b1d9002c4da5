package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, 10000, cfg.Retention.MaxEntries)
	assert.Equal(t, 80, cfg.Retention.WatermarkPercent)
	assert.Equal(t, 60, cfg.Retention.MaintenanceIntervalMinutes)
	assert.True(t, cfg.Capture.EnableLogging)
	assert.False(t, cfg.Capture.LogIncognito)
	assert.True(t, cfg.Capture.TrackTime)
	assert.Empty(t, cfg.Capture.ExcludedSites)
	assert.Contains(t, cfg.Capture.SkipURLPrefixes, "chrome://")
	assert.Equal(t, 2000, cfg.Dedupe.CooldownMS)
	assert.Equal(t, 1000, cfg.Dedupe.OpenedCooldownMS)
	assert.Equal(t, 1000, cfg.Dedupe.OpenLoadWindowMS)
	assert.True(t, cfg.Dedupe.DedupeNavigated)
	assert.Equal(t, 1024, cfg.Queue.Capacity)
	assert.Equal(t, "~/.config/tablog", cfg.Storage.Path)
	assert.Equal(t, "tablog.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)
	assert.Equal(t, 8722, cfg.Daemon.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.AuditLog)
	assert.Equal(t, 20, cfg.Query.PageSize)
	assert.Equal(t, 10, cfg.Query.TopDomains)
	assert.NoError(t, cfg.Validate())
}

func TestSensitiveDomainsIsPopulated(t *testing.T) {
	domains := SensitiveDomains()
	assert.Greater(t, len(domains), 10)

	// Spot-check some categories
	assert.Contains(t, domains, "chase.com")
	assert.Contains(t, domains, "1password.com")
	assert.Contains(t, domains, "mychart.com")
}

func TestEffectiveExcludedSites(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.ExcludedSites = []string{"example.com", "chase.com", "example.com"}

	assert.Equal(t, []string{"example.com", "chase.com"}, cfg.EffectiveExcludedSites())

	cfg.Capture.ExcludeSensitiveDomains = true
	sites := cfg.EffectiveExcludedSites()
	assert.Equal(t, "example.com", sites[0])
	assert.Contains(t, sites, "1password.com")
	assert.Len(t, sites, 1+len(SensitiveDomains()), "chase.com is not duplicated")
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
retention:
  days: 30
  max_entries: 500
capture:
  log_incognito: true
  excluded_sites:
    - "example.com"
dedupe:
  cooldown_ms: 5000
  dedupe_navigated: false
daemon:
  port: 9999
logging:
  level: "debug"
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, 500, cfg.Retention.MaxEntries)
	assert.True(t, cfg.Capture.LogIncognito)
	assert.Equal(t, []string{"example.com"}, cfg.Capture.ExcludedSites)
	assert.Equal(t, 5000, cfg.Dedupe.CooldownMS)
	assert.False(t, cfg.Dedupe.DedupeNavigated)
	assert.Equal(t, 9999, cfg.Daemon.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, 80, cfg.Retention.WatermarkPercent)
	assert.True(t, cfg.Capture.EnableLogging)
	assert.Equal(t, 1000, cfg.Dedupe.OpenedCooldownMS)
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)
	assert.Equal(t, "~/.config/tablog", cfg.Storage.Path)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	err := os.WriteFile(cfgPath, []byte(":::not valid yaml{{{"), 0644)
	require.NoError(t, err)

	_, err = Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"watermark": "retention:\n  watermark_percent: 150\n",
		"cooldown":  "dedupe:\n  cooldown_ms: -1\n",
		"port":      "daemon:\n  port: 70000\n",
		"entries":   "retention:\n  max_entries: -5\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

			_, err := Load(cfgPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validating config file")
		})
	}
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load("/tmp/nonexistent_path_12345/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "deep", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)

	// Should return defaults
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, "127.0.0.1", cfg.Daemon.Host)

	// File should now exist on disk
	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)

	// File should be valid YAML loadable again
	cfg2, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Retention.Days, cfg2.Retention.Days)
	assert.Equal(t, cfg.Capture.SkipURLPrefixes, cfg2.Capture.SkipURLPrefixes)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
retention:
  days: 7
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retention.Days)
	// Other fields remain defaults
	assert.Equal(t, 10000, cfg.Retention.MaxEntries)
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Path = "/var/lib/tablog"

	db, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tablog/tablog.db", db)

	logPath, err := cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tablog/tablog.log", logPath)

	cfg.Logging.File = "/tmp/other.log"
	logPath, err = cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.log", logPath)

	cfg.Logging.File = ""
	logPath, err = cfg.LogPath()
	require.NoError(t, err)
	assert.Empty(t, logPath)

	assert.Equal(t, "127.0.0.1:8722", cfg.DaemonAddr())
	assert.Equal(t, time.Hour, cfg.MaintenanceInterval())
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/.config/tablog")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/tablog"), got)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("retention:\n  days: 10\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	err := Watch(ctx, cfgPath, 20*time.Millisecond, zerolog.Nop(), func(c *Config) { changes <- c })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfgPath, []byte("retention:\n  days: 3\n"), 0644))

	select {
	case c := <-changes:
		assert.Equal(t, 3, c.Retention.Days)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatchSkipsInvalidChange(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("retention:\n  days: 10\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, cfgPath, 20*time.Millisecond, zerolog.Nop(), func(c *Config) { changes <- c }))

	require.NoError(t, os.WriteFile(cfgPath, []byte(":::{{{"), 0644))

	select {
	case <-changes:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent_dir_12345/config.yaml", 0, zerolog.Nop(), func(*Config) {})
	assert.Error(t, err)
}
