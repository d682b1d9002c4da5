package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/runnerr0/tablog/internal/engine"
	"github.com/runnerr0/tablog/internal/event"
)

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for add command")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer e.Close()

	return c.executeWith(e)
}

// changeForKind maps a user-facing kind onto the raw change that produces it.
func changeForKind(k event.Kind) (event.Change, error) {
	switch k {
	case event.KindOpened:
		return event.ChangeCreated, nil
	case event.KindLoaded:
		return event.ChangeCompleted, nil
	case event.KindNavigated:
		return event.ChangeURLChanged, nil
	case event.KindActivated:
		return event.ChangeActivated, nil
	default:
		return "", fmt.Errorf("cannot add a %s event by hand", k)
	}
}

// executeWith runs the add logic against a prepared env (used by tests).
func (c *AddCommand) executeWith(e *env) error {
	parsed, err := url.ParseRequestURI(c.URL)
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("invalid URL: %s", c.URL)
	}

	kind, err := event.ParseKind(c.Event)
	if err != nil {
		return err
	}
	change, err := changeForKind(kind)
	if err != nil {
		return err
	}

	eng, err := e.newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	receipt, err := eng.Ingest(ctx, event.Notification{
		TabID:  c.TabID,
		URL:    c.URL,
		Title:  c.Title,
		Change: change,
		At:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}

	if receipt.Outcome != engine.OutcomeRecorded {
		return fmt.Errorf("event not recorded: %s", receipt.Reason)
	}
	if err := receipt.Pending.Wait(ctx); err != nil {
		return fmt.Errorf("storing event: %w", err)
	}

	ev := receipt.Event
	if jsonOutput(c.globals) {
		return printJSON(ev)
	}

	fmt.Printf("Added %s event %s (%s)\n", ev.Kind, ev.ID, ev.FormattedTime)
	fmt.Printf("  URL: %s\n", ev.URL)
	fmt.Printf("  Title: %s\n", ev.Title)
	fmt.Printf("  Domain: %s\n", ev.Domain)
	return nil
}
