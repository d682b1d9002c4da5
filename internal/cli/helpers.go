package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/engine"
	"github.com/runnerr0/tablog/internal/logging"
	"github.com/runnerr0/tablog/internal/storage"
)

// env is everything a command needs: the loaded config and an open,
// migrated store. Tests build one around an in-memory database.
type env struct {
	cfg        *config.Config
	configPath string
	dbPath     string
	db         *sql.DB
	store      *storage.SQLiteStore
	logger     zerolog.Logger
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

// newEngine builds an Engine over the env's store. The caller closes it.
func (e *env) newEngine() (*engine.Engine, error) {
	logger := e.logger.With().Str("component", "engine").Logger()
	return engine.New(engine.Options{Store: e.store, Config: e.cfg, Logger: &logger})
}

// loadConfig resolves the config file. An explicit --config must exist
// and parse; otherwise the default location is created on first use.
func loadConfig(globals *GlobalFlags) (*config.Config, string, error) {
	if globals != nil && globals.Config != "" {
		path, err := config.ExpandPath(globals.Config)
		if err != nil {
			return nil, "", err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	path, err := config.ExpandPath(config.DefaultConfigPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadOrCreateAt(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// resolveDBPath picks the database file: --db-path wins over the config.
func resolveDBPath(globals *GlobalFlags, cfg *config.Config) (string, error) {
	if globals != nil && globals.DBPath != "" {
		return config.ExpandPath(globals.DBPath)
	}
	return cfg.DBPath()
}

// openEnv loads config, opens the database and applies migrations.
func openEnv(globals *GlobalFlags) (*env, error) {
	cfg, configPath, err := loadConfig(globals)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if globals != nil && globals.Verbose {
		level = "debug"
	}
	logger := logging.Configure(level, true, os.Stderr)

	dbPath, err := resolveDBPath(globals, cfg)
	if err != nil {
		return nil, err
	}
	db, err := openDB(dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(db,
		storage.WithWatermarkPercent(cfg.Retention.WatermarkPercent),
		storage.WithAudit(cfg.Logging.AuditLog),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &env{
		cfg:        cfg,
		configPath: configPath,
		dbPath:     dbPath,
		db:         db,
		store:      store,
		logger:     logger,
	}, nil
}

// openDB opens the SQLite file, creating its directory, and migrates it.
// A single connection serializes every write.
func openDB(dbPath, journalMode string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	runner := storage.NewMigrationRunner(db).WithJournalMode(journalMode)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// formatDurationHuman formats a duration into a human-readable string like "30 days".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// formatMillis renders a session duration in milliseconds.
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(time.Second).String()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput(globals *GlobalFlags) bool {
	return globals != nil && globals.JSON
}
