package daemon

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/runnerr0/tablog/internal/engine"
	"github.com/runnerr0/tablog/internal/event"
	"github.com/runnerr0/tablog/internal/query"
	"github.com/runnerr0/tablog/internal/settings"
	"github.com/runnerr0/tablog/internal/storage"
	"github.com/runnerr0/tablog/internal/writequeue"
)

// EventRequest is one tab notification posted by the event source.
// Timestamp is optional, in epoch milliseconds.
type EventRequest struct {
	TabID       int          `json:"tabId"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Change      event.Change `json:"change"`
	PreviousURL string       `json:"previousUrl,omitempty"`
	Incognito   bool         `json:"incognito,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
}

// Notification converts the request into an engine notification.
func (r EventRequest) Notification() event.Notification {
	n := event.Notification{
		TabID:       r.TabID,
		URL:         r.URL,
		Title:       r.Title,
		Change:      r.Change,
		PreviousURL: r.PreviousURL,
		Incognito:   r.Incognito,
	}
	if r.Timestamp > 0 {
		n.At = time.UnixMilli(r.Timestamp)
	}
	return n
}

// EventResponse reports how a notification was handled.
type EventResponse struct {
	Outcome engine.Outcome  `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Event   *event.TabEvent `json:"event,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	SessionID     string           `json:"sessionId"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
	Queue         writequeue.Stats `json:"queue"`
	Storage       *storage.Stats   `json:"storage"`
}

// LiveTabsRequest lists the tab ids currently open in the browser.
type LiveTabsRequest struct {
	TabIDs []int `json:"tabIds"`
}

// GetStatus reports daemon health, queue activity and storage totals.
func (s *Server) GetStatus(c *fiber.Ctx) error {
	st, err := s.engine.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(StatusResponse{
		Status:        "ok",
		Version:       s.version,
		SessionID:     s.engine.SessionID(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Queue:         s.engine.QueueStats(),
		Storage:       st,
	})
}

// PostEvent ingests one notification. With ?wait=true the response is
// sent after the append has run.
func (s *Server) PostEvent(c *fiber.Ctx) error {
	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		s.logger.Debug().Err(err).Msg("bad event payload")
		return fiber.NewError(fiber.StatusBadRequest, "invalid event payload")
	}
	if _, err := req.Change.Kind(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	receipt, err := s.engine.Ingest(c.UserContext(), req.Notification())
	if err != nil {
		return unavailable(err)
	}

	if receipt.Pending != nil && c.QueryBool("wait") {
		if err := receipt.Pending.Wait(c.UserContext()); err != nil {
			return unavailable(err)
		}
	}

	status := fiber.StatusOK
	if receipt.Outcome == engine.OutcomeRecorded {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(EventResponse{
		Outcome: receipt.Outcome,
		Reason:  receipt.Reason,
		Event:   receipt.Event,
	})
}

// PostLiveTabs replaces the live tab set and prunes orphaned sessions.
func (s *Server) PostLiveTabs(c *fiber.Ctx) error {
	var req LiveTabsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid live tabs payload")
	}
	pruned := s.engine.SetLiveTabs(req.TabIDs)
	return c.JSON(fiber.Map{"pruned": pruned})
}

// ListEvents runs a query: q, event, window, sort, page, page_size.
func (s *Server) ListEvents(c *fiber.Ctx) error {
	f, err := query.ParseFilter(c.Query("q"), c.Query("event"), c.Query("window"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	key, err := query.ParseSort(c.Query("sort"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	page := query.Page{Number: c.QueryInt("page", 1), Size: c.QueryInt("page_size", 0)}

	res, err := s.engine.Query(c.UserContext(), f, key, page)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// GetEvent returns one stored event by id.
func (s *Server) GetEvent(c *fiber.Ctx) error {
	ev, err := s.engine.GetEvent(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "event not found")
		}
		return err
	}
	return c.JSON(ev)
}

// ClearEvents empties the log. The caller must confirm with
// ConfirmHeader: ConfirmClearAll.
func (s *Server) ClearEvents(c *fiber.Ctx) error {
	if !strings.EqualFold(c.Get(ConfirmHeader), ConfirmClearAll) {
		return fiber.NewError(fiber.StatusPreconditionRequired, "set "+ConfirmHeader+": "+ConfirmClearAll+" to clear the log")
	}
	removed, err := s.engine.ClearAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// GetStats returns the analytics summary; ?top= bounds the domain list.
func (s *Server) GetStats(c *fiber.Ctx) error {
	res, err := s.engine.Aggregate(c.UserContext(), c.QueryInt("top", 0))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// GetSettings returns the current settings snapshot.
func (s *Server) GetSettings(c *fiber.Ctx) error {
	cur, err := s.engine.Settings(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(cur)
}

// PutSettings updates the settings record. Fields absent from the body
// keep their current values.
func (s *Server) PutSettings(c *fiber.Ctx) error {
	saved, err := s.engine.UpdateSettings(c.UserContext(), func(cur *settings.Settings) error {
		if err := c.BodyParser(cur); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid settings payload")
		}
		if err := cur.Normalize().Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int("retention_days", saved.RetentionDays).Int("max_entries", saved.MaxEntries).Msg("settings updated")
	return c.JSON(saved)
}

// unavailable maps shutdown and backpressure errors to 503 so the event
// source retries later. Other errors pass through.
func unavailable(err error) error {
	switch {
	case errors.Is(err, engine.ErrClosed),
		errors.Is(err, writequeue.ErrQueueStopped),
		errors.Is(err, writequeue.ErrQueueFull),
		errors.Is(err, writequeue.ErrDropped):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}
