// Package session tracks per-tab focus sessions. A focus session is the
// contiguous span during which a tab is the active tab; it restarts on
// every activation.
package session

import (
	"sync"
	"time"
)

// State is the focus session on record for one tab.
type State struct {
	URL       string
	StartedAt time.Time
}

// Tracker owns all SessionState. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	states map[int]State
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[int]State)}
}

// OnOpened starts a session for a new tab. An existing session keeps its
// start time.
func (t *Tracker) OnOpened(tabID int, url string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[tabID]; ok {
		if url != "" {
			st.URL = url
			t.states[tabID] = st
		}
		return
	}
	t.states[tabID] = State{URL: url, StartedAt: now}
}

// OnActivated returns the length of the session that ends with this
// activation and restarts the session at now. An untracked tab yields zero.
func (t *Tracker) OnActivated(tabID int, url string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var d time.Duration
	if st, ok := t.states[tabID]; ok {
		d = clamp(now.Sub(st.StartedAt))
	}
	t.states[tabID] = State{URL: url, StartedAt: now}
	return d
}

// OnNavigated records the tab's new URL without touching the start time.
func (t *Tracker) OnNavigated(tabID int, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[tabID]; ok {
		st.URL = url
		t.states[tabID] = st
	}
}

// OnClosed ends the tab's session. It returns the duration since the last
// activation (or open) and whether a session was on record.
func (t *Tracker) OnClosed(tabID int, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[tabID]
	if !ok {
		return 0, false
	}
	delete(t.states, tabID)
	return clamp(now.Sub(st.StartedAt)), true
}

// PruneOrphans drops sessions for tabs absent from the live set, covering
// removals that were never reported. It returns the number dropped.
func (t *Tracker) PruneOrphans(live []int) int {
	alive := make(map[int]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id := range t.states {
		if _, ok := alive[id]; !ok {
			delete(t.states, id)
			removed++
		}
	}
	return removed
}

// Get returns the session on record for a tab.
func (t *Tracker) Get(tabID int) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[tabID]
	return st, ok
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// Reset clears all sessions.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.states = make(map[int]State)
	t.mu.Unlock()
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
