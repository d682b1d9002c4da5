// Package dedup suppresses tab events that repeat a recently logged
// (tab, url, kind) combination.
package dedup

import (
	"sync"
	"time"

	"github.com/runnerr0/tablog/internal/event"
)

// Config controls the suppression windows.
type Config struct {
	// Cooldown applies to every kind without an override.
	Cooldown time.Duration
	// KindCooldowns overrides Cooldown per kind.
	KindCooldowns map[event.Kind]time.Duration
	// OpenLoadWindow merges an opened and a loaded event for the same URL
	// on the same tab.
	OpenLoadWindow time.Duration
	// DedupeNavigated routes navigated events through suppression.
	DedupeNavigated bool
	// MaxTabs bounds the number of tabs with tracked state.
	MaxTabs int
}

// DefaultConfig returns the cooldowns used by the browser extension.
func DefaultConfig() Config {
	return Config{
		Cooldown:        2 * time.Second,
		KindCooldowns:   map[event.Kind]time.Duration{event.KindOpened: time.Second},
		OpenLoadWindow:  time.Second,
		DedupeNavigated: true,
		MaxTabs:         4096,
	}
}

type key struct {
	url  string
	kind event.Kind
}

type openLoad struct {
	url string
	at  time.Time
}

// tabState is all dedup state for one tab id.
type tabState struct {
	logged   map[key]time.Time
	openLoad *openLoad
	lastSeen time.Time
}

// Deduplicator tracks when each (tab, url, kind) was last allowed through.
// Marking happens synchronously inside ShouldSuppress so that a second
// identical event arriving while the first append is still queued is
// suppressed as well.
type Deduplicator struct {
	cfg  Config
	mu   sync.Mutex
	tabs map[int]*tabState
}

// New creates a Deduplicator. Zero values in cfg fall back to defaults.
func New(cfg Config) *Deduplicator {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = def.MaxTabs
	}
	return &Deduplicator{cfg: cfg, tabs: make(map[int]*tabState)}
}

func (d *Deduplicator) cooldown(k event.Kind) time.Duration {
	if c, ok := d.cfg.KindCooldowns[k]; ok && c > 0 {
		return c
	}
	return d.cfg.Cooldown
}

// ShouldSuppress reports whether candidate repeats a recently allowed
// event. When it returns false the candidate is recorded as logged at now.
func (d *Deduplicator) ShouldSuppress(candidate event.TabEvent, now time.Time) bool {
	if candidate.Kind == event.KindNavigated && !d.cfg.DedupeNavigated {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.tabs[candidate.TabID]
	k := key{url: candidate.URL, kind: candidate.Kind}

	if st != nil {
		if last, ok := st.logged[k]; ok && now.Sub(last) < d.cooldown(candidate.Kind) {
			return true
		}
		if isOpenOrLoad(candidate.Kind) && st.openLoad != nil && st.openLoad.url == candidate.URL &&
			now.Sub(st.openLoad.at) < d.cfg.OpenLoadWindow {
			return true
		}
	}

	if st == nil {
		if len(d.tabs) >= d.cfg.MaxTabs {
			d.makeRoom(now)
		}
		st = &tabState{logged: make(map[key]time.Time)}
		d.tabs[candidate.TabID] = st
	}
	st.logged[k] = now
	st.lastSeen = now
	if isOpenOrLoad(candidate.Kind) {
		st.openLoad = &openLoad{url: candidate.URL, at: now}
	}
	return false
}

func isOpenOrLoad(k event.Kind) bool {
	return k == event.KindOpened || k == event.KindLoaded
}

// ForgetTab drops all state for a closed tab so a reused tab id starts
// clean.
func (d *Deduplicator) ForgetTab(tabID int) {
	d.mu.Lock()
	delete(d.tabs, tabID)
	d.mu.Unlock()
}

// expiry is how long an entry is kept: ten times the longest window.
func (d *Deduplicator) expiry() time.Duration {
	longest := d.cfg.Cooldown
	for _, c := range d.cfg.KindCooldowns {
		if c > longest {
			longest = c
		}
	}
	if d.cfg.OpenLoadWindow > longest {
		longest = d.cfg.OpenLoadWindow
	}
	return 10 * longest
}

// Sweep removes entries older than the expiry window and returns how many
// were removed.
func (d *Deduplicator) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(now)
}

func (d *Deduplicator) sweepLocked(now time.Time) int {
	cutoff := now.Add(-d.expiry())
	removed := 0
	for tabID, st := range d.tabs {
		for k, at := range st.logged {
			if at.Before(cutoff) {
				delete(st.logged, k)
				removed++
			}
		}
		if st.openLoad != nil && st.openLoad.at.Before(cutoff) {
			st.openLoad = nil
		}
		if len(st.logged) == 0 && st.openLoad == nil {
			delete(d.tabs, tabID)
		}
	}
	return removed
}

// makeRoom frees a slot when the tab dictionary is full: expired entries
// go first, then the least recently seen tab.
func (d *Deduplicator) makeRoom(now time.Time) {
	d.sweepLocked(now)
	if len(d.tabs) < d.cfg.MaxTabs {
		return
	}
	oldestID, first := 0, true
	var oldest time.Time
	for id, st := range d.tabs {
		if first || st.lastSeen.Before(oldest) {
			oldestID, oldest, first = id, st.lastSeen, false
		}
	}
	delete(d.tabs, oldestID)
}

// Len returns the number of tracked (tab, url, kind) entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, st := range d.tabs {
		n += len(st.logged)
	}
	return n
}

// Tabs returns the number of tabs with tracked state.
func (d *Deduplicator) Tabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tabs)
}

// Reset clears all state.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.tabs = make(map[int]*tabState)
	d.mu.Unlock()
}
