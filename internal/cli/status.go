package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/runnerr0/tablog/internal/daemon"
	"github.com/runnerr0/tablog/internal/settings"
	"github.com/runnerr0/tablog/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DatabasePath      string            `json:"database_path"`
	DatabaseSizeBytes int64             `json:"database_size_bytes"`
	TotalEvents       int64             `json:"total_events"`
	OldestEvent       string            `json:"oldest_event,omitempty"`
	NewestEvent       string            `json:"newest_event,omitempty"`
	ByKind            map[string]int64  `json:"by_kind"`
	RetentionDays     int               `json:"retention_days"`
	MaxEntries        int               `json:"max_entries"`
	LoggingEnabled    bool              `json:"logging_enabled"`
	ExcludedSites     int               `json:"excluded_sites"`
	TopDomains        []domainCountJSON `json:"top_domains"`
	DaemonRunning     bool              `json:"daemon_running"`
	DaemonSessionID   string            `json:"daemon_session_id,omitempty"`
	LastAction        string            `json:"last_action,omitempty"`
}

type domainCountJSON struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

// executeWith runs status against a prepared env (for testing).
func (c *StatusCommand) executeWith(e *env) error {
	ctx := context.Background()

	stats, err := e.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	cur, err := settings.NewProvider(e.store, settings.FromConfig(e.cfg)).Get(ctx)
	if err != nil {
		return err
	}

	url := c.daemonURL
	if url == "" {
		url = "http://" + e.cfg.DaemonAddr()
	}
	live, running := probeDaemon(url)

	// Empty when auditing is off or nothing was recorded.
	lastAction := ""
	if recent, err := e.store.RecentAudit(ctx, 1); err == nil && len(recent) > 0 {
		a := recent[0]
		lastAction = fmt.Sprintf("%s (%s) at %s", a.Action, a.Detail, a.At.Local().Format("2006-01-02 15:04"))
	}

	if jsonOutput(c.globals) {
		return c.printStatusJSON(e.dbPath, stats, cur, live, running, lastAction)
	}
	return c.printStatusHuman(e.dbPath, stats, cur, live, running, lastAction)
}

func (c *StatusCommand) printStatusHuman(dbPath string, stats *storage.Stats, cur settings.Settings, live *daemon.StatusResponse, running bool, lastAction string) error {
	fmt.Println("tablog status")
	fmt.Println("=============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(stats.DatabaseSizeBytes))
	fmt.Printf("Events:        %s\n", formatNumber(stats.TotalEvents))

	if stats.TotalEvents > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestEvent.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Newest:        %s\n", stats.NewestEvent.Local().Format("2006-01-02 15:04"))

		kinds := make([]string, 0, len(stats.ByKind))
		for k, n := range stats.ByKind {
			kinds = append(kinds, fmt.Sprintf("%s %s", k, formatNumber(n)))
		}
		sort.Strings(kinds)
		fmt.Printf("By kind:       %s\n", strings.Join(kinds, ", "))
	}

	if cur.RetentionDays > 0 {
		fmt.Printf("Retention:     %s\n", formatDurationHuman(time.Duration(cur.RetentionDays)*24*time.Hour))
	} else {
		fmt.Println("Retention:     forever")
	}
	if cur.MaxEntries > 0 {
		fmt.Printf("Max entries:   %s\n", formatNumber(int64(cur.MaxEntries)))
	} else {
		fmt.Println("Max entries:   unbounded")
	}
	if cur.EnableLogging {
		fmt.Println("Logging:       enabled")
	} else {
		fmt.Println("Logging:       disabled")
	}
	fmt.Printf("Excluded:      %d sites\n", len(cur.ExcludedSites))
	if lastAction != "" {
		fmt.Printf("Last action:   %s\n", lastAction)
	}

	if len(stats.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-28s %s\n", d.Domain, formatNumber(d.Count))
		}
	}

	fmt.Println()
	if running {
		fmt.Printf("Daemon:        running (session %s, queue %d/%d)\n", live.SessionID, live.Queue.Depth, live.Queue.Capacity)
	} else {
		fmt.Println("Daemon:        not running")
	}

	return nil
}

func (c *StatusCommand) printStatusJSON(dbPath string, stats *storage.Stats, cur settings.Settings, live *daemon.StatusResponse, running bool, lastAction string) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		TotalEvents:       stats.TotalEvents,
		ByKind:            stats.ByKind,
		RetentionDays:     cur.RetentionDays,
		MaxEntries:        cur.MaxEntries,
		LoggingEnabled:    cur.EnableLogging,
		ExcludedSites:     len(cur.ExcludedSites),
		TopDomains:        make([]domainCountJSON, len(stats.TopDomains)),
		DaemonRunning:     running,
		LastAction:        lastAction,
	}
	if out.ByKind == nil {
		out.ByKind = map[string]int64{}
	}

	if stats.TotalEvents > 0 {
		out.OldestEvent = stats.OldestEvent.UTC().Format(time.RFC3339)
		out.NewestEvent = stats.NewestEvent.UTC().Format(time.RFC3339)
	}
	for i, d := range stats.TopDomains {
		out.TopDomains[i] = domainCountJSON{Domain: d.Domain, Count: d.Count}
	}
	if running {
		out.DaemonSessionID = live.SessionID
	}

	return printJSON(out)
}

// probeDaemon asks the daemon at baseURL for its status. It reports false
// if nothing answers within a second.
func probeDaemon(baseURL string) (*daemon.StatusResponse, bool) {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/status")
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var st daemon.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, false
	}
	return &st, true
}
