package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/tablog/internal/settings"
)

// Execute implements the go-flags Commander interface for SettingsCommand.
func (c *SettingsCommand) Execute(args []string) error {
	if c.Enable && c.Disable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWith(e)
}

func (c *SettingsCommand) changed() bool {
	return c.RetentionDays >= 0 || c.MaxEntries >= 0 || c.Enable || c.Disable ||
		c.Incognito != "" || c.TrackTime != "" || len(c.Exclude) > 0 || len(c.Include) > 0
}

func parseSwitch(name, v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("--%s expects on or off, got %q", name, v)
	}
}

// apply returns cur with the requested changes.
func (c *SettingsCommand) apply(cur settings.Settings) (settings.Settings, error) {
	next := cur
	if c.RetentionDays >= 0 {
		next.RetentionDays = c.RetentionDays
	}
	if c.MaxEntries >= 0 {
		next.MaxEntries = c.MaxEntries
	}
	if c.Enable {
		next.EnableLogging = true
	}
	if c.Disable {
		next.EnableLogging = false
	}
	if c.Incognito != "" {
		on, err := parseSwitch("incognito", c.Incognito)
		if err != nil {
			return cur, err
		}
		next.LogIncognito = on
	}
	if c.TrackTime != "" {
		on, err := parseSwitch("track-time", c.TrackTime)
		if err != nil {
			return cur, err
		}
		next.TrackTime = on
	}

	remove := make(map[string]bool, len(c.Include))
	for _, site := range c.Include {
		remove[strings.ToLower(strings.TrimSpace(site))] = true
	}
	sites := make([]string, 0, len(cur.ExcludedSites)+len(c.Exclude))
	seen := make(map[string]bool)
	for _, site := range append(append([]string(nil), cur.ExcludedSites...), c.Exclude...) {
		site = strings.ToLower(strings.TrimSpace(site))
		if site == "" || remove[site] || seen[site] {
			continue
		}
		seen[site] = true
		sites = append(sites, site)
	}
	next.ExcludedSites = sites
	return next, nil
}

func (c *SettingsCommand) executeWith(e *env) error {
	ctx := context.Background()
	provider := settings.NewProvider(e.store, settings.FromConfig(e.cfg))

	cur, err := provider.Get(ctx)
	if err != nil {
		return err
	}

	if c.changed() {
		cur, err = provider.Update(ctx, func(s *settings.Settings) error {
			next, err := c.apply(*s)
			if err != nil {
				return err
			}
			*s = next
			return nil
		})
		if err != nil {
			return err
		}
		if err := e.store.RecordAudit(ctx, "settings", "updated from cli"); err != nil {
			e.logger.Warn().Err(err).Msg("audit settings change")
		}
	}

	if jsonOutput(c.globals) {
		if cur.ExcludedSites == nil {
			cur.ExcludedSites = []string{}
		}
		return printJSON(cur)
	}

	fmt.Printf("Logging:          %s\n", onOff(cur.EnableLogging))
	fmt.Printf("Incognito tabs:   %s\n", onOff(cur.LogIncognito))
	fmt.Printf("Track time:       %s\n", onOff(cur.TrackTime))
	fmt.Printf("Retention days:   %d\n", cur.RetentionDays)
	fmt.Printf("Max entries:      %d\n", cur.MaxEntries)
	if len(cur.ExcludedSites) == 0 {
		fmt.Println("Excluded sites:   none")
	} else {
		fmt.Println("Excluded sites:")
		for _, site := range cur.ExcludedSites {
			fmt.Printf("  %s\n", site)
		}
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
