package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tablog/internal/analytics"
	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/engine"
	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/settings"
)

func seedSample(t *testing.T, e *env) int64 {
	t.Helper()
	base := time.Now().Add(-time.Hour).UnixMilli()
	seed(t, e,
		tabEvent("e1", 1, "https://github.com/runnerr0", event.KindOpened, base),
		tabEvent("e2", 2, "https://news.ycombinator.com", event.KindOpened, base+1000),
		tabEvent("e3", 1, "https://github.com/runnerr0", event.KindActivated, base+2000),
		tabEvent("e4", 3, "https://go.dev/doc", event.KindLoaded, base+3000),
	)
	return base
}

func TestSearch_KeywordNewestFirst(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)
	cmd := &SearchCommand{Window: "all", Sort: "newest", Page: 1, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e, []string{"GitHub"}))
	})

	assert.Contains(t, output, `Found 2 results for "GitHub" (page 1 of 1)`)
	first := strings.Index(output, "1. [activated]")
	second := strings.Index(output, "2. [opened]")
	assert.True(t, first >= 0 && second > first, output)
	assert.NotContains(t, output, "ycombinator")
}

func TestSearch_NoResults(t *testing.T) {
	e := newTestEnv(t, nil)
	cmd := &SearchCommand{Window: "all", Sort: "newest", Page: 1, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e, []string{"nothing"}))
	})
	assert.Contains(t, output, `No results found for "nothing"`)
}

func TestSearch_JSONWithFiltersAndPaging(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)
	cmd := &SearchCommand{Event: "opened", Window: "week", Sort: "domain", Page: 5, PageSize: 1, globals: &GlobalFlags{JSON: true}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e, nil))
	})

	var out jsonSearchOutput
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	assert.Equal(t, 2, out.TotalItems)
	assert.Equal(t, 2, out.TotalPages)
	assert.Equal(t, 2, out.Page, "page clamps to the last one")
	require.Len(t, out.Results, 1)
	assert.Equal(t, "news.ycombinator.com", out.Results[0].Domain)
}

func TestSearch_RejectsBadFlags(t *testing.T) {
	e := newTestEnv(t, nil)

	err := (&SearchCommand{Window: "decade", Sort: "newest", globals: &GlobalFlags{}}).executeWith(e, nil)
	assert.Error(t, err)
	err = (&SearchCommand{Window: "all", Sort: "random", globals: &GlobalFlags{}}).executeWith(e, nil)
	assert.Error(t, err)
	err = (&SearchCommand{Event: "exploded", Window: "all", Sort: "newest", globals: &GlobalFlags{}}).executeWith(e, nil)
	assert.Error(t, err)
}

func TestStats_JSON(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)
	cmd := &StatsCommand{Top: 1, globals: &GlobalFlags{JSON: true}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e))
	})

	var res analytics.Result
	require.NoError(t, json.Unmarshal([]byte(output), &res), output)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 3, res.UniqueDomains)
	assert.Equal(t, []analytics.DomainCount{{Domain: "github.com", Count: 2}}, res.TopDomains)
}

func TestStats_Human(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)

	output := captureOutput(t, func() {
		require.NoError(t, (&StatsCommand{globals: &GlobalFlags{}}).executeWith(e))
	})
	assert.Contains(t, output, "Total events:    4")
	assert.Contains(t, output, "Unique domains:  3")
	assert.Contains(t, output, " 1. github.com")
}

func TestOpen_Formats(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)

	output := captureOutput(t, func() {
		require.NoError(t, (&OpenCommand{ID: "e4", Format: "full", globals: &GlobalFlags{}}).executeWith(e))
	})
	assert.Contains(t, output, "Event:     loaded")
	assert.Contains(t, output, "URL:       https://go.dev/doc")
	assert.Contains(t, output, "Domain:    go.dev")

	output = captureOutput(t, func() {
		require.NoError(t, (&OpenCommand{ID: "e4", Format: "url", globals: &GlobalFlags{}}).executeWith(e))
	})
	assert.Equal(t, "https://go.dev/doc\n", output)

	output = captureOutput(t, func() {
		require.NoError(t, (&OpenCommand{ID: "e4", Format: "full", globals: &GlobalFlags{JSON: true}}).executeWith(e))
	})
	var ev event.TabEvent
	require.NoError(t, json.Unmarshal([]byte(output), &ev))
	assert.Equal(t, "e4", ev.ID)

	err := (&OpenCommand{ID: "e4", Format: "pdf", globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)
}

func TestOpen_NotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	err := (&OpenCommand{ID: "missing", Format: "full", globals: &GlobalFlags{}}).executeWith(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event not found: missing")
}

func TestAdd_RecordsThroughPipeline(t *testing.T) {
	e := newTestEnv(t, nil)
	cmd := &AddCommand{URL: "https://Example.com/page", Title: "Example", TabID: 9, Event: "opened", globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e))
	})
	assert.Contains(t, output, "Added opened event")
	assert.Contains(t, output, "Domain: example.com")

	snap, err := e.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 9, snap[0].TabID)
	assert.Equal(t, "Example", snap[0].Title)
}

func TestAdd_RespectsGating(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Capture.ExcludedSites = []string{"example.com"} })

	err := (&AddCommand{URL: "https://www.example.com", Event: "opened", globals: &GlobalFlags{}}).executeWith(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(settings.SkipExcludedSite))

	n, err := e.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_RejectsBadInput(t *testing.T) {
	e := newTestEnv(t, nil)

	err := (&AddCommand{URL: "not a url", Event: "opened", globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)
	err = (&AddCommand{URL: "https://a.com", Event: "closed", globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)
	err = (&AddCommand{URL: "https://a.com", Event: "exploded", globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)
}

func TestPrune_UsesSettingsRetention(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Retention.Days = 30 })
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	seed(t, e,
		tabEvent("old", 1, "https://a.com", event.KindOpened, now.Add(-31*24*time.Hour).UnixMilli()),
		tabEvent("new", 1, "https://a.com", event.KindOpened, now.Add(-29*24*time.Hour).UnixMilli()),
	)

	output := captureOutput(t, func() {
		require.NoError(t, (&PruneCommand{DryRun: true, globals: &GlobalFlags{}}).executeWith(e, now))
	})
	assert.Contains(t, output, "Would remove 1 entries older than 30 days.")
	n, _ := e.store.Count(context.Background())
	assert.Equal(t, int64(2), n, "dry run deletes nothing")

	output = captureOutput(t, func() {
		require.NoError(t, (&PruneCommand{globals: &GlobalFlags{}}).executeWith(e, now))
	})
	assert.Contains(t, output, "Removed 1 entries older than 30 days.")
	n, _ = e.store.Count(context.Background())
	assert.Equal(t, int64(1), n)
}

func TestPrune_OlderThanOverride(t *testing.T) {
	e := newTestEnv(t, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	seed(t, e, tabEvent("a", 1, "https://a.com", event.KindOpened, now.Add(-8*24*time.Hour).UnixMilli()))

	output := captureOutput(t, func() {
		require.NoError(t, (&PruneCommand{OlderThan: "1w", globals: &GlobalFlags{JSON: true}}).executeWith(e, now))
	})
	var out pruneResult
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	assert.Equal(t, 7, out.RetentionDays)
	assert.Equal(t, int64(1), out.Removed)

	assert.Error(t, (&PruneCommand{OlderThan: "5h", globals: &GlobalFlags{}}).executeWith(e, now))
	assert.Error(t, (&PruneCommand{OlderThan: "soon", globals: &GlobalFlags{}}).executeWith(e, now))
}

func TestPrune_DisabledRetention(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Retention.Days = 0 })
	output := captureOutput(t, func() {
		require.NoError(t, (&PruneCommand{globals: &GlobalFlags{}}).executeWith(e, time.Now()))
	})
	assert.Contains(t, output, "Retention is disabled")
}

func TestPurge_ForceClearsLog(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)
	cmd := &PurgeCommand{All: true, Force: true, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.confirm())
		require.NoError(t, cmd.executeWith(e))
	})
	assert.Contains(t, output, "Purged 4 events.")

	n, err := e.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurge_JSONOutput(t *testing.T) {
	e := newTestEnv(t, nil)
	seedSample(t, e)

	output := captureOutput(t, func() {
		require.NoError(t, (&PurgeCommand{All: true, Force: true, globals: &GlobalFlags{JSON: true}}).executeWith(e))
	})

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &result), output)
	assert.Equal(t, true, result["purged"])
	assert.Equal(t, float64(4), result["removed"])
}

func TestPurge_Confirmation(t *testing.T) {
	ok := &PurgeCommand{All: true, stdin: strings.NewReader("PURGE\n"), globals: &GlobalFlags{}}
	captureOutput(t, func() {
		assert.NoError(t, ok.confirm())
	})

	wrong := &PurgeCommand{All: true, stdin: strings.NewReader("purge please\n"), globals: &GlobalFlags{}}
	captureOutput(t, func() {
		err := wrong.confirm()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not match")
	})

	empty := &PurgeCommand{All: true, stdin: strings.NewReader(""), globals: &GlobalFlags{}}
	captureOutput(t, func() {
		err := empty.confirm()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no input")
	})
}

func TestImport_FromFileAndStdin(t *testing.T) {
	e := newTestEnv(t, nil)
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"loggedTabs": [
		{"id": "x1", "tabId": 1, "url": "https://a.com", "title": "A", "event": "opened", "timestamp": 1700000000000},
		{"tabId": 2, "url": "https://b.com", "event": "focused", "timestamp": 1700000001000}
	]}`), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, (&ImportCommand{File: path, globals: &GlobalFlags{}}).executeWith(e))
	})
	assert.Contains(t, output, "Imported 2 records.")

	output = captureOutput(t, func() {
		cmd := &ImportCommand{File: "-", stdin: strings.NewReader(`[{"url": "https://c.com"}]`), globals: &GlobalFlags{JSON: true}}
		require.NoError(t, cmd.executeWith(e))
	})
	var report engine.ImportReport
	require.NoError(t, json.Unmarshal([]byte(output), &report), output)
	assert.Equal(t, 1, report.Imported)

	snap, err := e.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, "x1", snap[0].ID)
	assert.Equal(t, event.KindActivated, snap[1].Kind)
}

func TestImport_Errors(t *testing.T) {
	e := newTestEnv(t, nil)

	err := (&ImportCommand{File: filepath.Join(t.TempDir(), "missing.json"), globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)

	err = (&ImportCommand{File: "-", stdin: strings.NewReader(`42`), globals: &GlobalFlags{}}).executeWith(e)
	assert.Error(t, err)
}

func TestSettings_ShowAndChange(t *testing.T) {
	e := newTestEnv(t, nil)

	output := captureOutput(t, func() {
		require.NoError(t, (&SettingsCommand{RetentionDays: -1, MaxEntries: -1, globals: &GlobalFlags{}}).executeWith(e))
	})
	assert.Contains(t, output, "Logging:          on")
	assert.Contains(t, output, "Retention days:   90")
	assert.Contains(t, output, "Excluded sites:   none")

	cmd := &SettingsCommand{
		RetentionDays: 14,
		MaxEntries:    -1,
		Disable:       true,
		TrackTime:     "off",
		Exclude:       []string{"Bank.com", "mail.example.org", "bank.com"},
		globals:       &GlobalFlags{JSON: true},
	}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e))
	})
	var got settings.Settings
	require.NoError(t, json.Unmarshal([]byte(output), &got), output)
	assert.Equal(t, 14, got.RetentionDays)
	assert.Equal(t, 10000, got.MaxEntries)
	assert.False(t, got.EnableLogging)
	assert.False(t, got.TrackTime)
	assert.Equal(t, []string{"bank.com", "mail.example.org"}, got.ExcludedSites)

	cmd = &SettingsCommand{RetentionDays: -1, MaxEntries: -1, Include: []string{"BANK.com"}, globals: &GlobalFlags{JSON: true}}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(e))
	})
	require.NoError(t, json.Unmarshal([]byte(output), &got), output)
	assert.Equal(t, []string{"mail.example.org"}, got.ExcludedSites)
	assert.Equal(t, 14, got.RetentionDays, "persisted from the previous run")

	audit, err := e.store.RecentAudit(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestSettings_RejectsBadSwitch(t *testing.T) {
	e := newTestEnv(t, nil)
	err := (&SettingsCommand{RetentionDays: -1, MaxEntries: -1, Incognito: "maybe", globals: &GlobalFlags{}}).executeWith(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--incognito")
}

func TestIngest_ServesUntilCanceled(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Daemon.Port = 0 })
	cmd := &IngestCommand{NoWatch: true, globals: &GlobalFlags{JSON: true}, version: "test"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.run(ctx, e) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ingest did not stop after cancel")
	}
}

func TestIngest_RejectsBadPort(t *testing.T) {
	e := newTestEnv(t, nil)
	err := (&IngestCommand{Port: 70000, NoWatch: true, globals: &GlobalFlags{}}).run(context.Background(), e)
	assert.Error(t, err)
}
