// Package engine is the ingestion context: it owns the dedup and session
// state, the write queue and the settings provider, and exposes the
// operations the daemon and CLI call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/runnerr0/tablog/internal/analytics"
	"github.com/runnerr0/tablog/internal/config"
	"github.com/runnerr0/tablog/internal/dedup"
	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/logging"
	"github.com/runnerr0/tablog/internal/query"
	"github.com/runnerr0/tablog/internal/session"
	"github.com/runnerr0/tablog/internal/settings"
	"github.com/runnerr0/tablog/internal/storage"
	"github.com/runnerr0/tablog/internal/writequeue"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("engine closed")

// Outcome is what happened to one notification.
type Outcome string

const (
	OutcomeRecorded   Outcome = "recorded"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeSkipped    Outcome = "skipped"
)

// Suppression reasons reported alongside OutcomeSuppressed.
const (
	ReasonDuplicate      = "duplicate"
	ReasonUntrackedClose = "untracked_close"
	ReasonClosedTab      = "closed_tab"
)

// Receipt describes the handling of one notification. Pending is set only
// for recorded events and resolves once the append has run.
type Receipt struct {
	Outcome Outcome
	Reason  string
	Event   *event.TabEvent
	Pending *writequeue.Pending
}

// Options are the Engine's collaborators. Store and Config are required.
type Options struct {
	Store      storage.Store
	Config     *config.Config
	Logger     *zerolog.Logger
	Normalizer *event.Normalizer
	Now        func() time.Time
}

// Engine processes notifications and serves queries. All methods are safe
// for concurrent use.
type Engine struct {
	store      storage.Store
	logger     zerolog.Logger
	now        func() time.Time
	normalizer *event.Normalizer
	settings   *settings.Provider
	dedup      *dedup.Deduplicator
	sessions   *session.Tracker
	queue      *writequeue.Queue
	pageSize   int
	topN       int

	// ingestMu orders notifications end to end, from dedup through the
	// queue handoff. closedAt is guarded by it.
	ingestMu sync.Mutex
	closedAt map[int]time.Time

	mu       sync.Mutex
	gate     settings.Gate
	liveTabs []int
	haveLive bool
	closed   bool

	stopWorker context.CancelFunc
	maintStop  context.CancelFunc
	maintDone  chan struct{}
}

// New builds an Engine and starts its write queue worker.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	cfg := opts.Config

	logger := logging.Component("engine")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = event.NewNormalizer()
	}

	e := &Engine{
		store:      opts.Store,
		logger:     logger,
		now:        now,
		normalizer: normalizer,
		settings:   settings.NewProvider(opts.Store, settings.FromConfig(cfg)),
		dedup:      dedup.New(DedupConfig(cfg)),
		sessions:   session.NewTracker(),
		queue:      writequeue.New(opts.Store, cfg.Queue.Capacity, logger.With().Str("component", "writequeue").Logger()),
		pageSize:   cfg.Query.PageSize,
		topN:       cfg.Query.TopDomains,
		gate:       settings.Gate{SkipPrefixes: cfg.Capture.SkipURLPrefixes},
		closedAt:   make(map[int]time.Time),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.stopWorker = cancel
	e.queue.Start(ctx)

	return e, nil
}

// DedupConfig maps the dedupe config section onto the Deduplicator's.
func DedupConfig(cfg *config.Config) dedup.Config {
	return dedup.Config{
		Cooldown: time.Duration(cfg.Dedupe.CooldownMS) * time.Millisecond,
		KindCooldowns: map[event.Kind]time.Duration{
			event.KindOpened: time.Duration(cfg.Dedupe.OpenedCooldownMS) * time.Millisecond,
		},
		OpenLoadWindow:  time.Duration(cfg.Dedupe.OpenLoadWindowMS) * time.Millisecond,
		DedupeNavigated: cfg.Dedupe.DedupeNavigated,
		MaxTabs:         cfg.Dedupe.MaxTrackedTabs,
	}
}

// SessionID identifies this run; it is stamped onto every event.
func (e *Engine) SessionID() string {
	return e.normalizer.SessionID()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) currentGate() settings.Gate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate
}

// Ingest runs one notification through gating, deduplication and session
// tracking, and queues the resulting event. A skipped notification leaves
// no trace in any state.
func (e *Engine) Ingest(ctx context.Context, note event.Notification) (Receipt, error) {
	if e.isClosed() {
		return Receipt{}, ErrClosed
	}

	s, err := e.settings.Get(ctx)
	if err != nil {
		return Receipt{}, err
	}

	if reason := e.currentGate().Check(s, note); reason != settings.SkipNone {
		e.logger.Debug().Int("tab_id", note.TabID).Str("reason", string(reason)).Msg("notification skipped")
		return Receipt{Outcome: OutcomeSkipped, Reason: string(reason)}, nil
	}

	now := note.At
	if now.IsZero() {
		now = e.now()
	}

	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	if note.Change == event.ChangeRemoved {
		return e.ingestRemoval(note.TabID, s, now)
	}

	candidate, err := e.normalizer.Candidate(note, now)
	if err != nil {
		return Receipt{}, err
	}

	// A notification stamped no later than the tab's removal belongs to the
	// closed tab. A new open always starts the id over.
	if at, ok := e.closedAt[candidate.TabID]; ok {
		if candidate.Kind != event.KindOpened && !now.After(at) {
			e.logger.Debug().Int("tab_id", candidate.TabID).Str("event", string(candidate.Kind)).Msg("notification for closed tab")
			return Receipt{Outcome: OutcomeSuppressed, Reason: ReasonClosedTab}, nil
		}
		delete(e.closedAt, candidate.TabID)
	}

	if e.dedup.ShouldSuppress(candidate, now) {
		e.logger.Debug().Int("tab_id", candidate.TabID).Str("event", string(candidate.Kind)).Msg("duplicate suppressed")
		return Receipt{Outcome: OutcomeSuppressed, Reason: ReasonDuplicate}, nil
	}

	switch candidate.Kind {
	case event.KindOpened, event.KindLoaded:
		e.sessions.OnOpened(candidate.TabID, candidate.URL, now)
	case event.KindNavigated:
		e.sessions.OnNavigated(candidate.TabID, candidate.URL)
	case event.KindActivated:
		d := e.sessions.OnActivated(candidate.TabID, candidate.URL, now)
		if s.TrackTime {
			candidate = event.WithDuration(candidate, d)
		}
	}

	return e.record(candidate, s.MaxEntries)
}

func (e *Engine) ingestRemoval(tabID int, s settings.Settings, now time.Time) (Receipt, error) {
	d, tracked := e.sessions.OnClosed(tabID, now)
	e.dedup.ForgetTab(tabID)
	e.closedAt[tabID] = now
	if !tracked {
		return Receipt{Outcome: OutcomeSuppressed, Reason: ReasonUntrackedClose}, nil
	}

	closed := e.normalizer.Closed(tabID, d, now)
	if !s.TrackTime {
		closed.SessionDuration = nil
	}
	return e.record(closed, s.MaxEntries)
}

func (e *Engine) record(ev event.TabEvent, maxEntries int) (Receipt, error) {
	p, err := e.queue.EnqueueAppend(ev, maxEntries)
	if err != nil {
		e.logger.Warn().Err(err).Int("tab_id", ev.TabID).Str("event", string(ev.Kind)).Msg("append not queued")
		return Receipt{}, fmt.Errorf("queue append: %w", err)
	}
	return Receipt{Outcome: OutcomeRecorded, Event: &ev, Pending: p}, nil
}

// Query runs a filtered, sorted, paginated view over the current log. A
// zero page size uses the configured default.
func (e *Engine) Query(ctx context.Context, f query.Filter, key query.SortKey, p query.Page) (query.Result, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return query.Result{}, err
	}
	if p.Size <= 0 {
		p.Size = e.pageSize
	}
	return query.Run(snap, f, key, p, e.now()), nil
}

// Aggregate summarizes the whole log. topN <= 0 uses the configured
// default.
func (e *Engine) Aggregate(ctx context.Context, topN int) (analytics.Result, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return analytics.Result{}, err
	}
	if topN <= 0 {
		topN = e.topN
	}
	return analytics.Aggregate(snap, e.now(), topN), nil
}

// GetEvent returns one stored event.
func (e *Engine) GetEvent(ctx context.Context, id string) (*event.TabEvent, error) {
	return e.store.GetEvent(ctx, id)
}

// Stats reports storage totals.
func (e *Engine) Stats(ctx context.Context) (*storage.Stats, error) {
	return e.store.Stats(ctx)
}

// ClearAll empties the log behind any queued appends and returns how many
// entries were removed. Confirmation belongs to the caller.
func (e *Engine) ClearAll(ctx context.Context) (int64, error) {
	var removed int64
	p, err := e.queue.EnqueueMaintenance("clear_all", func(ctx context.Context) error {
		n, err := e.store.ClearAll(ctx)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := p.Wait(ctx); err != nil {
		return 0, err
	}
	e.logger.Info().Int64("removed", removed).Msg("log cleared")
	return removed, nil
}

// Settings returns the current settings snapshot.
func (e *Engine) Settings(ctx context.Context) (settings.Settings, error) {
	return e.settings.Get(ctx)
}

// SaveSettings replaces the settings record.
func (e *Engine) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	return e.settings.Save(ctx, s)
}

// ApplyConfig pushes a reloaded config file into the settings record and
// the URL gate. Only settings the file changed since the last load are
// carried over, so edits made through the CLI or the API survive. Dedup
// windows and queue capacity keep their startup values.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	fresh := settings.FromConfig(cfg)
	prev := e.settings.SetDefaults(fresh)
	_, err := e.settings.Update(ctx, func(cur *settings.Settings) error {
		*cur = settings.Carry(*cur, prev, fresh)
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.gate = settings.Gate{SkipPrefixes: cfg.Capture.SkipURLPrefixes}
	e.mu.Unlock()
	return nil
}

// UpdateSettings applies fn to the current settings and saves the result.
func (e *Engine) UpdateSettings(ctx context.Context, fn func(*settings.Settings) error) (settings.Settings, error) {
	return e.settings.Update(ctx, fn)
}

// SetLiveTabs records the browser's current tab ids and drops sessions for
// every other tab.
func (e *Engine) SetLiveTabs(ids []int) int {
	e.mu.Lock()
	e.liveTabs = append([]int(nil), ids...)
	e.haveLive = true
	e.mu.Unlock()

	return e.sessions.PruneOrphans(ids)
}

// Reset clears dedup and session state.
func (e *Engine) Reset() {
	e.ingestMu.Lock()
	e.closedAt = make(map[int]time.Time)
	e.ingestMu.Unlock()
	e.dedup.Reset()
	e.sessions.Reset()
	e.mu.Lock()
	e.liveTabs = nil
	e.haveLive = false
	e.mu.Unlock()
}

// QueueStats reports write queue activity.
func (e *Engine) QueueStats() writequeue.Stats {
	return e.queue.Stats()
}

// Flush waits for every queued write to finish.
func (e *Engine) Flush(ctx context.Context) error {
	return e.queue.Flush(ctx)
}

// Close stops maintenance, drains the write queue and stops the worker.
// The store is left open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.StopMaintenance()
	err := e.queue.Close()
	e.stopWorker()
	return err
}
