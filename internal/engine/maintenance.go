package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tablog/internal/writequeue"
)

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	DedupSwept     int
	SessionsPruned int
	RetentionDays  int
	// Retention resolves once the retention sweep has run on the queue.
	Retention *writequeue.Pending
	removed   *int64
}

// Removed returns the number of entries the retention sweep deleted. It
// is only meaningful after Retention has resolved.
func (r MaintenanceReport) Removed() int64 {
	if r.removed == nil {
		return 0
	}
	return *r.removed
}

// Maintain sweeps stale dedup entries, prunes sessions of tabs no longer
// live, refreshes the settings snapshot and queues the retention sweep.
func (e *Engine) Maintain(ctx context.Context) (MaintenanceReport, error) {
	if e.isClosed() {
		return MaintenanceReport{}, ErrClosed
	}
	now := e.now()

	report := MaintenanceReport{DedupSwept: e.dedup.Sweep(now)}
	e.sweepClosed(now)

	e.mu.Lock()
	live, haveLive := e.liveTabs, e.haveLive
	e.mu.Unlock()
	if haveLive {
		report.SessionsPruned = e.sessions.PruneOrphans(live)
	}

	s, err := e.settings.Refresh(ctx)
	if err != nil {
		return report, fmt.Errorf("refresh settings: %w", err)
	}
	report.RetentionDays = s.RetentionDays

	var removed int64
	report.removed = &removed
	p, err := e.queue.EnqueueMaintenance("retention", func(ctx context.Context) error {
		n, err := e.store.MaintainRetention(ctx, s.RetentionDays, now)
		if err != nil {
			return err
		}
		removed = n
		if n > 0 {
			e.logger.Info().Int64("removed", n).Int("retention_days", s.RetentionDays).Msg("expired entries removed")
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("queue retention: %w", err)
	}
	report.Retention = p

	e.logger.Debug().
		Int("dedup_swept", report.DedupSwept).
		Int("sessions_pruned", report.SessionsPruned).
		Msg("maintenance pass queued")
	return report, nil
}

// closedTabMemory is how long a removal keeps late notifications for the
// same tab id out.
const closedTabMemory = time.Minute

func (e *Engine) sweepClosed(now time.Time) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()
	for id, at := range e.closedAt {
		if now.Sub(at) > closedTabMemory {
			delete(e.closedAt, id)
		}
	}
}

// StartMaintenance runs Maintain once now and then every interval until
// StopMaintenance or Close. Calling it again replaces the running loop.
func (e *Engine) StartMaintenance(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	e.StopMaintenance()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.maintStop = cancel
	e.maintDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)

		e.runMaintenance(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runMaintenance(ctx)
			}
		}
	}()
}

func (e *Engine) runMaintenance(ctx context.Context) {
	if _, err := e.Maintain(ctx); err != nil {
		e.logger.Error().Err(err).Msg("maintenance failed")
	}
}

// StopMaintenance stops the loop started by StartMaintenance and waits for
// it to exit.
func (e *Engine) StopMaintenance() {
	e.mu.Lock()
	cancel, done := e.maintStop, e.maintDone
	e.maintStop, e.maintDone = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
