package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/writequeue"
)

// ImportReport counts the outcome of an import.
type ImportReport struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// DecodeLegacy reads a legacy export: either a bare JSON array of records
// or an object holding them under "loggedTabs".
func DecodeLegacy(r io.Reader) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode import: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		LoggedTabs []map[string]any `json:"loggedTabs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode import: expected an array or {\"loggedTabs\": [...]}: %w", err)
	}
	return wrapped.LoggedTabs, nil
}

// Import appends legacy records in order after repairing them. Imported
// history bypasses gating and deduplication but still honors maxEntries.
func (e *Engine) Import(ctx context.Context, records []map[string]any) (ImportReport, error) {
	if e.isClosed() {
		return ImportReport{}, ErrClosed
	}
	s, err := e.settings.Get(ctx)
	if err != nil {
		return ImportReport{}, err
	}

	now := e.now()
	batch := e.queue.Stats().Capacity / 4
	if batch < 1 {
		batch = 1
	}
	var report ImportReport

	// Waiting per batch keeps the import from crowding live appends out of
	// the bounded queue.
	for start := 0; start < len(records); start += batch {
		end := start + batch
		if end > len(records) {
			end = len(records)
		}

		pendings := make([]*writequeue.Pending, 0, end-start)
		for _, rec := range records[start:end] {
			p, err := e.queue.EnqueueAppend(event.FromLegacy(rec, now), s.MaxEntries)
			if err != nil {
				if errors.Is(err, writequeue.ErrQueueStopped) {
					return report, err
				}
				report.Failed++
				continue
			}
			pendings = append(pendings, p)
		}

		for _, p := range pendings {
			if err := p.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed++
				continue
			}
			report.Imported++
		}
	}

	detail := fmt.Sprintf("imported %d records, %d failed", report.Imported, report.Failed)
	if err := e.store.RecordAudit(ctx, "import", detail); err != nil {
		e.logger.Warn().Err(err).Msg("audit import")
	}
	e.logger.Info().Int("imported", report.Imported).Int("failed", report.Failed).Msg("import finished")
	return report, nil
}
