package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tablog/internal/analytics"
)

// Execute implements the go-flags Commander interface for StatsCommand.
func (c *StatsCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

func (c *StatsCommand) executeWith(e *env) error {
	snap, err := e.store.Snapshot(context.Background())
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}

	top := c.Top
	if top <= 0 {
		top = e.cfg.Query.TopDomains
	}
	res := analytics.Aggregate(snap, time.Now(), top)

	if jsonOutput(c.globals) {
		if res.TopDomains == nil {
			res.TopDomains = []analytics.DomainCount{}
		}
		return printJSON(res)
	}

	fmt.Printf("Total events:    %s\n", formatNumber(int64(res.Total)))
	fmt.Printf("Unique domains:  %s\n", formatNumber(int64(res.UniqueDomains)))
	fmt.Printf("Today:           %s\n", formatNumber(int64(res.Today)))
	fmt.Printf("Average per day: %s\n", formatNumber(int64(res.AvgPerDay)))

	if len(res.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for i, d := range res.TopDomains {
			fmt.Printf("  %2d. %-28s %s\n", i+1, d.Domain, formatNumber(int64(d.Count)))
		}
	}
	return nil
}
