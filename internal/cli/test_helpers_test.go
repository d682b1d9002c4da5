package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// newTestEnv builds an env around a migrated in-memory database.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db, storage.WithAudit(true))
	require.NoError(t, err)

	e := &env{
		cfg:    cfg,
		dbPath: ":memory:",
		db:     db,
		store:  store,
		logger: zerolog.Nop(),
	}
	t.Cleanup(e.Close)
	return e
}

// seed appends events directly to the store.
func seed(t *testing.T, e *env, events ...event.TabEvent) {
	t.Helper()
	for _, ev := range events {
		event.Repair(&ev, ev.Time())
		require.NoError(t, e.store.Append(context.Background(), ev, 0))
	}
}

func tabEvent(id string, tabID int, url string, kind event.Kind, ts int64) event.TabEvent {
	return event.TabEvent{
		ID:        id,
		TabID:     tabID,
		URL:       url,
		Title:     "Title " + id,
		Domain:    event.ExtractDomain(url),
		Kind:      kind,
		Timestamp: ts,
	}
}
