// Package settings holds the user settings snapshot consulted before every
// ingestion and at maintenance time, and the provider that loads it lazily
// from the settings record.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/storage"
)

// Settings is the user-facing snapshot. It is never mutated in place; a
// change produces a new value that replaces the cached one.
type Settings struct {
	RetentionDays int      `json:"retentionDays"`
	MaxEntries    int      `json:"maxEntries"`
	EnableLogging bool     `json:"enableLogging"`
	LogIncognito  bool     `json:"logIncognito"`
	ExcludedSites []string `json:"excludedSites"`
	TrackTime     bool     `json:"trackTime"`
}

// FromConfig builds the snapshot a fresh install starts with.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		RetentionDays: cfg.Retention.Days,
		MaxEntries:    cfg.Retention.MaxEntries,
		EnableLogging: cfg.Capture.EnableLogging,
		LogIncognito:  cfg.Capture.LogIncognito,
		ExcludedSites: cfg.EffectiveExcludedSites(),
		TrackTime:     cfg.Capture.TrackTime,
	}
}

// Normalize trims and lowercases excluded sites and drops blanks.
func (s Settings) Normalize() Settings {
	sites := make([]string, 0, len(s.ExcludedSites))
	for _, site := range s.ExcludedSites {
		site = strings.ToLower(strings.TrimSpace(site))
		if site != "" {
			sites = append(sites, site)
		}
	}
	s.ExcludedSites = sites
	return s
}

// Validate rejects values that would make the log unusable.
func (s Settings) Validate() error {
	if s.MaxEntries < 0 {
		return fmt.Errorf("maxEntries must not be negative")
	}
	if s.RetentionDays < 0 {
		return fmt.Errorf("retentionDays must not be negative")
	}
	return nil
}

// SkipReason explains why a notification was not ingested. Empty means
// ingest.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipDisabled     SkipReason = "logging_disabled"
	SkipNoURL        SkipReason = "no_url"
	SkipSystemURL    SkipReason = "system_url"
	SkipExcludedSite SkipReason = "excluded_site"
	SkipIncognito    SkipReason = "incognito"
)

// Gate decides whether a notification is ingested at all.
type Gate struct {
	SkipPrefixes []string
}

// Check applies the gates in order: logging enabled, URL present (except
// for removals, which carry none), browser-internal URL, excluded site,
// incognito.
func (g Gate) Check(s Settings, note event.Notification) SkipReason {
	if !s.EnableLogging {
		return SkipDisabled
	}
	if note.Change != event.ChangeRemoved {
		if strings.TrimSpace(note.URL) == "" {
			return SkipNoURL
		}
		for _, p := range g.SkipPrefixes {
			if strings.HasPrefix(note.URL, p) {
				return SkipSystemURL
			}
		}
		if MatchesExcluded(note.URL, s.ExcludedSites) {
			return SkipExcludedSite
		}
	}
	if note.Incognito && !s.LogIncognito {
		return SkipIncognito
	}
	return SkipNone
}

// MatchesExcluded reports whether rawURL falls under one of sites. A site
// containing "/" is a URL prefix (scheme optional); otherwise it matches
// the host and any of its subdomains.
func MatchesExcluded(rawURL string, sites []string) bool {
	if len(sites) == 0 || rawURL == "" {
		return false
	}
	lower := strings.ToLower(rawURL)
	host := ""
	if u, err := url.Parse(lower); err == nil {
		host = u.Hostname()
	}
	stripped := lower
	if i := strings.Index(stripped, "://"); i >= 0 {
		stripped = stripped[i+3:]
	}

	for _, site := range sites {
		site = strings.ToLower(strings.TrimSpace(site))
		if site == "" {
			continue
		}
		if strings.Contains(site, "/") {
			if strings.HasPrefix(lower, site) || strings.HasPrefix(stripped, site) {
				return true
			}
			continue
		}
		if host == site || strings.HasSuffix(host, "."+site) {
			return true
		}
	}
	return false
}

// Record is the persisted settings record.
type Record interface {
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, value []byte) error
}

// Provider serves the cached snapshot, loading it on first use and again on
// Refresh. A missing record is seeded with the defaults.
type Provider struct {
	record   Record
	defaults Settings

	mu     sync.RWMutex
	cached *Settings

	// writeMu serializes Save and Update.
	writeMu sync.Mutex
}

// NewProvider creates a Provider over record.
func NewProvider(record Record, defaults Settings) *Provider {
	return &Provider{record: record, defaults: defaults.Normalize()}
}

// Get returns the cached snapshot, loading it if needed.
func (p *Provider) Get(ctx context.Context) (Settings, error) {
	p.mu.RLock()
	if p.cached != nil {
		s := *p.cached
		p.mu.RUnlock()
		return s, nil
	}
	p.mu.RUnlock()
	return p.Refresh(ctx)
}

// Refresh reloads the snapshot from the record.
func (p *Provider) Refresh(ctx context.Context) (Settings, error) {
	s, err := p.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	p.mu.Lock()
	p.cached = &s
	p.mu.Unlock()
	return s, nil
}

func (p *Provider) load(ctx context.Context) (Settings, error) {
	p.mu.RLock()
	defaults := p.defaults
	p.mu.RUnlock()

	data, err := p.record.LoadSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s := defaults
		if err := p.write(ctx, s); err != nil {
			return Settings{}, err
		}
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	// Fields absent from an older record keep their defaults.
	s := defaults
	s.ExcludedSites = append([]string(nil), defaults.ExcludedSites...)
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s.Normalize(), nil
}

// Save validates s, persists it and replaces the cached snapshot.
func (p *Provider) Save(ctx context.Context, s Settings) (Settings, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.save(ctx, s)
}

// Update applies fn to a copy of the current snapshot and saves the result.
// Concurrent updates do not lose each other's changes.
func (p *Provider) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	cur, err := p.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	cur.ExcludedSites = append([]string(nil), cur.ExcludedSites...)
	if err := fn(&cur); err != nil {
		return Settings{}, err
	}
	return p.save(ctx, cur)
}

func (p *Provider) save(ctx context.Context, s Settings) (Settings, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	if err := p.write(ctx, s); err != nil {
		return Settings{}, err
	}
	p.mu.Lock()
	p.cached = &s
	p.mu.Unlock()
	return s, nil
}

// SetDefaults replaces the seed used when no record exists yet and returns
// the previous seed.
func (p *Provider) SetDefaults(s Settings) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.defaults
	p.defaults = s.Normalize()
	return prev
}

// Carry returns cur with the edits that turned prev into next. Fields equal
// in prev and next keep cur's value. Excluded sites are merged: sites
// dropped from next are removed, sites new in next are added, and sites
// cur gained elsewhere stay.
func Carry(cur, prev, next Settings) Settings {
	if prev.RetentionDays != next.RetentionDays {
		cur.RetentionDays = next.RetentionDays
	}
	if prev.MaxEntries != next.MaxEntries {
		cur.MaxEntries = next.MaxEntries
	}
	if prev.EnableLogging != next.EnableLogging {
		cur.EnableLogging = next.EnableLogging
	}
	if prev.LogIncognito != next.LogIncognito {
		cur.LogIncognito = next.LogIncognito
	}
	if prev.TrackTime != next.TrackTime {
		cur.TrackTime = next.TrackTime
	}

	prevSites := make(map[string]bool, len(prev.ExcludedSites))
	for _, site := range prev.Normalize().ExcludedSites {
		prevSites[site] = true
	}
	nextSites := make(map[string]bool, len(next.ExcludedSites))
	for _, site := range next.Normalize().ExcludedSites {
		nextSites[site] = true
	}

	sites := make([]string, 0, len(cur.ExcludedSites)+len(nextSites))
	seen := make(map[string]bool)
	for _, site := range cur.Normalize().ExcludedSites {
		if seen[site] || (prevSites[site] && !nextSites[site]) {
			continue
		}
		seen[site] = true
		sites = append(sites, site)
	}
	for _, site := range next.Normalize().ExcludedSites {
		if !seen[site] && !prevSites[site] {
			seen[site] = true
			sites = append(sites, site)
		}
	}
	cur.ExcludedSites = sites
	return cur
}

func (p *Provider) write(ctx context.Context, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := p.record.SaveSettings(ctx, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
