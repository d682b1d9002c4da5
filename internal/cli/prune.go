package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tablog/internal/settings"
)

// pruneResult is the JSON output of the prune command.
type pruneResult struct {
	RetentionDays int    `json:"retention_days"`
	Cutoff        string `json:"cutoff"`
	Removed       int64  `json:"removed"`
	DryRun        bool   `json:"dry_run"`
}

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e, time.Now())
}

// executeWith prunes entries older than the retention period as of now.
// --older-than overrides the retention days from the settings record.
func (c *PruneCommand) executeWith(e *env, now time.Time) error {
	ctx := context.Background()

	days := 0
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
		}
		days = int(d / (24 * time.Hour))
		if days < 1 {
			return fmt.Errorf("--older-than must be at least one day, got %s", c.OlderThan)
		}
	} else {
		cur, err := settings.NewProvider(e.store, settings.FromConfig(e.cfg)).Get(ctx)
		if err != nil {
			return err
		}
		days = cur.RetentionDays
	}

	if days <= 0 {
		if jsonOutput(c.globals) {
			return printJSON(pruneResult{DryRun: c.DryRun})
		}
		fmt.Println("Retention is disabled; nothing to prune.")
		return nil
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	var removed int64
	if c.DryRun {
		snap, err := e.store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("load log: %w", err)
		}
		for _, ev := range snap {
			if ev.Timestamp < cutoff.UnixMilli() {
				removed++
			}
		}
	} else {
		n, err := e.store.MaintainRetention(ctx, days, now)
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
		removed = n
	}

	if jsonOutput(c.globals) {
		return printJSON(pruneResult{
			RetentionDays: days,
			Cutoff:        cutoff.UTC().Format(time.RFC3339),
			Removed:       removed,
			DryRun:        c.DryRun,
		})
	}

	age := formatDurationHuman(time.Duration(days) * 24 * time.Hour)
	if c.DryRun {
		fmt.Printf("Would remove %s entries older than %s.\n", formatNumber(removed), age)
	} else {
		fmt.Printf("Removed %s entries older than %s.\n", formatNumber(removed), age)
	}
	return nil
}
